package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/auth"
	"github.com/harrisonrobin/taskdeck/pkg/config"
	"github.com/harrisonrobin/taskdeck/pkg/gateway"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/sqlitestore"
	"github.com/harrisonrobin/taskdeck/pkg/supabase"
	"github.com/harrisonrobin/taskdeck/pkg/tasks"
	"github.com/harrisonrobin/taskdeck/pkg/taskstore"
	"github.com/harrisonrobin/taskdeck/pkg/weather"
)

// deck is an opened session: the gateway, who it acts for and the task
// components on top of it.
type deck struct {
	gw    gateway.Gateway
	auth  model.AuthContext
	store *taskstore.Store
	tasks *tasks.Coordinator
	close func()
}

// Close waits for background task operations and releases the gateway.
func (d *deck) Close() {
	d.tasks.Wait()
	d.close()
}

func (a *app) supabaseClient() (*supabase.Client, error) {
	return supabase.New(supabase.Options{
		URL:     a.cfg.Supabase.URL,
		AnonKey: a.cfg.Supabase.AnonKey,
		Tables: map[string]string{
			taskstore.CollectionTasks:    a.cfg.Supabase.TasksTable,
			taskstore.CollectionProfiles: a.cfg.Supabase.ProfilesTable,
		},
		RetryMax: a.cfg.Gateway.RetryMax,
		Logger:   a.log,
	})
}

// openGateway connects the configured backend. The Supabase session comes
// from the cached token; refreshed tokens are written back to it.
func (a *app) openGateway() (gateway.Gateway, func(), error) {
	if a.cfg.Backend == config.BackendLocal {
		l := a.cfg.Local
		store, err := sqlitestore.Open(l.DBPath, model.User{ID: l.UserID, Email: l.Email}, model.ParseRole(l.Role))
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}

	client, err := a.supabaseClient()
	if err != nil {
		return nil, nil, err
	}
	path, err := auth.Path(auth.SessionFile)
	if err != nil {
		return nil, nil, err
	}
	tok, err := auth.LoadToken(path)
	if err != nil {
		a.log.Debug("no cached session", zap.String("path", path), zap.Error(err))
		return nil, nil, fmt.Errorf("no session: %w", apperr.ErrAuthRequired)
	}
	sess := client.Session(tok, func(src oauth2.TokenSource) oauth2.TokenSource {
		return auth.NewPersistingSource(src, path, tok, a.log)
	})
	return sess, func() {}, nil
}

func (a *app) openDeck(ctx context.Context) (*deck, error) {
	gw, closeFn, err := a.openGateway()
	if err != nil {
		return nil, err
	}
	authCtx, err := taskstore.ResolveAuth(ctx, gw, a.cfg.Gateway.Timeout, a.log)
	if err != nil {
		closeFn()
		return nil, err
	}
	a.log.Debug("session resolved", zap.String("user", authCtx.UserID), zap.String("role", string(authCtx.Role)))
	store := taskstore.New(gw, authCtx, taskstore.Options{Timeout: a.cfg.Gateway.Timeout, Logger: a.log})
	return &deck{
		gw:    gw,
		auth:  authCtx,
		store: store,
		tasks: tasks.New(store, authCtx, tasks.Options{Logger: a.log}),
		close: closeFn,
	}, nil
}

func (a *app) weatherClient() *weather.Client {
	return weather.New(weather.Options{
		Language: a.cfg.Weather.Language,
		Timeout:  a.cfg.Gateway.Timeout,
		RetryMax: a.cfg.Gateway.RetryMax,
		Logger:   a.log,
	})
}
