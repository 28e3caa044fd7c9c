package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/marketsync/internal/auth"
	"github.com/vovakirdan/marketsync/internal/store/sqlite"
)

func newSession(t *testing.T) (*Store, *sqlite.SQLiteStore) {
	t.Helper()
	kv, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return New(kv, nil), kv
}

func token(t *testing.T, userID, name string, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte("backend"), TTL: ttl}, userID, name)
	require.NoError(t, err)
	return tok
}

func TestLoadWithoutCredentials(t *testing.T) {
	s, _ := newSession(t)
	creds, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, creds.Valid())
}

func TestLoadPrefersStoredUserID(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Credentials{Token: token(t, "claim-id", "Claim", time.Hour), UserID: "u1", UserName: "Asha"}))

	creds, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, creds.Valid())
	assert.Equal(t, "u1", creds.UserID)
	assert.Equal(t, "Asha", creds.UserName)
}

func TestLoadFallsBackToUserObjectAndWritesBack(t *testing.T) {
	s, kv := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Credentials{Token: token(t, "claim-id", "", time.Hour)}))
	require.NoError(t, s.SaveUser(ctx, []byte(`{"_id":"mongo-7","full_name":"Ravi Kumar"}`)))

	creds, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mongo-7", creds.UserID)
	assert.Equal(t, "Ravi Kumar", creds.UserName)

	stored, ok, err := kv.Get(ctx, KeyUserID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mongo-7", stored)
}

func TestLoadFallsBackToTokenClaims(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Credentials{Token: token(t, "u5", "Meera", time.Hour)}))

	creds, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u5", creds.UserID)
	assert.Equal(t, "Meera", creds.UserName)
}

func TestExpiredTokenCountsAsAbsent(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Credentials{Token: token(t, "u5", "", time.Hour), UserID: "u5"}))
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	creds, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, creds.Valid())

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestOpaqueTokenNeedsStoredUser(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Credentials{Token: "opaque"}))

	creds, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque", creds.Token)
	assert.False(t, creds.Valid())

	require.NoError(t, s.SaveUser(ctx, []byte(`{"id":42}`)))
	creds, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", creds.UserID)
}

func TestClear(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, Credentials{Token: "opaque", UserID: "u1"}))
	require.NoError(t, s.Clear(ctx))

	creds, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Credentials{}, creds)
	assert.Error(t, s.Save(ctx, Credentials{}))
	assert.Error(t, s.SaveUser(ctx, []byte("nope")))
}
