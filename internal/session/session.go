// Package session persists the credentials the realtime clients authenticate with.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/auth"
	"github.com/vovakirdan/marketsync/internal/store"
)

// Storage keys.
const (
	KeyToken    = "access_token"
	KeyUser     = "user"
	KeyUserID   = "user_id"
	KeyUserName = "user_name"
)

// Credentials identify the signed-in user.
type Credentials struct {
	Token    string
	UserID   string
	UserName string
}

// Valid reports whether the credentials are enough to open a connection.
func (c Credentials) Valid() bool {
	return c.Token != "" && c.UserID != ""
}

// Store keeps credentials in a key/value table and serves as an api.TokenSource.
type Store struct {
	kv     store.KVStore
	logger zerolog.Logger
	now    func() time.Time
}

func New(kv store.KVStore, logger *zerolog.Logger) *Store {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "session").Logger()
	}
	return &Store{kv: kv, logger: l, now: time.Now}
}

// Load returns the stored credentials. Missing or expired credentials are not
// an error; the result is simply not Valid.
//
// The user id is resolved from the user_id key, then from the stored user
// object (written back to user_id), then from the token claims.
func (s *Store) Load(ctx context.Context) (Credentials, error) {
	token, ok, err := s.kv.Get(ctx, KeyToken)
	if err != nil || !ok || token == "" {
		return Credentials{}, err
	}

	claims, err := auth.Inspect(token, s.now())
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		s.logger.Info().Msg("stored token expired")
		return Credentials{}, nil
	case err != nil:
		// Opaque tokens are fine, they just carry no identity.
		claims = nil
	}

	creds := Credentials{Token: token}
	if creds.UserID, _, err = s.kv.Get(ctx, KeyUserID); err != nil {
		return Credentials{}, err
	}
	if creds.UserName, _, err = s.kv.Get(ctx, KeyUserName); err != nil {
		return Credentials{}, err
	}

	if creds.UserID == "" || creds.UserName == "" {
		raw, ok, err := s.kv.Get(ctx, KeyUser)
		if err != nil {
			return Credentials{}, err
		}
		if ok {
			id, name := userFields(raw)
			if creds.UserID == "" && id != "" {
				creds.UserID = id
				if err := s.kv.Set(ctx, KeyUserID, id); err != nil {
					s.logger.Warn().Err(err).Msg("write back user id")
				}
			}
			if creds.UserName == "" {
				creds.UserName = name
			}
		}
	}

	if claims != nil {
		if creds.UserID == "" {
			creds.UserID = claims.Identity()
		}
		if creds.UserName == "" {
			creds.UserName = claims.Name
		}
	}
	return creds, nil
}

// Token returns the stored access token, or "" when signed out or expired.
func (s *Store) Token(ctx context.Context) (string, error) {
	creds, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return creds.Token, nil
}

// Save stores c. Empty user fields are removed so that Load falls back to the token.
func (s *Store) Save(ctx context.Context, c Credentials) error {
	if c.Token == "" {
		return errors.New("session: empty token")
	}
	if err := s.kv.Set(ctx, KeyToken, c.Token); err != nil {
		return err
	}
	for key, value := range map[string]string{KeyUserID: c.UserID, KeyUserName: c.UserName} {
		var err error
		if value == "" {
			err = s.kv.Delete(ctx, key)
		} else {
			err = s.kv.Set(ctx, key, value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveUser stores the user object returned by the backend at sign-in.
func (s *Store) SaveUser(ctx context.Context, raw []byte) error {
	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("session: user object: %w", err)
	}
	return s.kv.Set(ctx, KeyUser, string(raw))
}

// Clear signs the user out.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyToken, KeyUser, KeyUserID, KeyUserName)
}

// userFields extracts the id and display name of a stored user object.
func userFields(raw string) (id, name string) {
	var user map[string]any
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return "", ""
	}
	for _, key := range []string{"id", "_id", "user_id"} {
		if id = stringField(user[key]); id != "" {
			break
		}
	}
	for _, key := range []string{"full_name", "name", "username"} {
		if name = stringField(user[key]); name != "" {
			break
		}
	}
	return id, name
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
