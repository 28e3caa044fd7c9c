package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/marketsync/internal/api"
	"github.com/vovakirdan/marketsync/internal/realtime"
	"github.com/vovakirdan/marketsync/internal/session"
	"github.com/vovakirdan/marketsync/internal/store"
	"github.com/vovakirdan/marketsync/internal/store/sqlite"
)

var errNotLoggedIn = errors.New("not logged in, run marketsync login first")

// openSession opens the credential database. Close the returned store when done.
func (a *App) openSession() (*session.Store, store.Store, error) {
	st, err := sqlite.New(a.cfg.Session.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}
	return session.New(st, a.logger), st, nil
}

// credentials loads the stored session and fails when it is incomplete.
func (a *App) credentials(ctx context.Context) (session.Credentials, *session.Store, store.Store, error) {
	sess, st, err := a.openSession()
	if err != nil {
		return session.Credentials{}, nil, nil, err
	}
	creds, err := sess.Load(ctx)
	if err != nil {
		_ = st.Close()
		return session.Credentials{}, nil, nil, err
	}
	if !creds.Valid() {
		_ = st.Close()
		return session.Credentials{}, nil, nil, errNotLoggedIn
	}
	return creds, sess, st, nil
}

func (a *App) apiClient(tokens api.TokenSource) (*api.Client, error) {
	failures := a.cfg.API.BreakerFailures
	if failures < 0 {
		failures = 0
	}
	return api.New(api.Options{
		BaseURL:         a.cfg.API.BaseURL,
		Timeout:         a.cfg.API.Timeout,
		BreakerFailures: uint32(failures),
		BreakerCooldown: a.cfg.API.BreakerCooldown,
		Logger:          a.logger,
	}, tokens)
}

func (a *App) realtimeOptions(name string, creds session.Credentials) realtime.Options {
	return realtime.Options{
		Name:              name,
		URL:               a.cfg.Realtime.URL,
		Token:             creds.Token,
		UserID:            creds.UserID,
		ReconnectAttempts: a.cfg.Realtime.ReconnectAttempts,
		ReconnectDelay:    a.cfg.Realtime.ReconnectDelay,
		ConnectTimeout:    a.cfg.Realtime.ConnectTimeout,
		ReadLimit:         a.cfg.Realtime.ReadLimit,
		Logger:            a.logger,
	}
}
