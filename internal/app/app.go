// Package app wires configuration, stored credentials and the selected
// backend into a running lead store, and hands that store to the CLI and
// the board.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/travel-crm/internal/credential"
	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/remote"
	"github.com/nhle/travel-crm/internal/session"
	"github.com/nhle/travel-crm/internal/store"
	appsync "github.com/nhle/travel-crm/internal/sync"
	"github.com/nhle/travel-crm/internal/theme"
	"github.com/nhle/travel-crm/internal/ui/board"
)

// ErrNotConnected is returned when an operation needs the store before
// Connect has succeeded.
var ErrNotConnected = errors.New("app is not connected")

// App owns every long-lived resource of one crm process.
type App struct {
	Config  *model.AppConfig
	Log     zerolog.Logger
	Vault   *credential.Vault
	Session *session.Provider

	// Seed preloads session-local history. Set it before Connect.
	Seed store.Seed

	// Store is nil until Connect.
	Store *store.Store

	table   remote.Table
	closers []func() error
	metrics *metricsServer
}

// New prepares an App. Nothing is opened until Connect or OpenTable.
func New(cfg *model.AppConfig, vault *credential.Vault, log zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Log:     log,
		Vault:   vault,
		Session: session.New(vault, cfg.Users),
	}
}

// OpenTable opens the configured backend, running its migrations, and
// wraps it in the Redis relay when a feed URL is set. Calling it again
// returns the already open table.
func (a *App) OpenTable(ctx context.Context) (remote.Table, error) {
	if a.table != nil {
		return a.table, nil
	}

	tbl, closeFn, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeFn)

	if url := a.Config.Feed.RedisURL; url != "" {
		relay, err := a.openRelay(ctx, url, tbl)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, relay.Close)
		tbl = relay
	}

	a.table = tbl
	return tbl, nil
}

// Connect opens the table, starts the store acting as actor and, when an
// address is configured, serves metrics.
func (a *App) Connect(ctx context.Context, actor model.Actor) error {
	if a.Store != nil {
		return nil
	}

	tbl, err := a.OpenTable(ctx)
	if err != nil {
		return err
	}

	s := store.New(tbl,
		store.WithLogger(a.Log.With().Str("component", "store").Logger()),
		store.WithActor(actor),
		store.WithTable(a.Config.Remote.Table),
		store.WithSeed(a.Seed),
	)
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}
	a.Store = s
	a.closers = append(a.closers, s.Close)

	if addr := a.Config.Metrics.Addr; addr != "" {
		m, err := serveMetrics(addr, a.Log)
		if err != nil {
			return err
		}
		a.metrics = m
	}

	a.Log.Debug().
		Str("driver", a.Config.Remote.Driver).
		Str("actor", actor.Name).
		Int("leads", len(s.Leads())).
		Msg("store connected")
	return nil
}

// LoadSeed reads a JSON seed file into a.Seed.
func (a *App) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed: %w", err)
	}
	var seed store.Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing seed %s: %w", path, err)
	}
	a.Seed = seed
	return nil
}

// SaveSeed writes the store's session-local history to path so a later
// process can LoadSeed it.
func (a *App) SaveSeed(path string) error {
	if a.Store == nil {
		return ErrNotConnected
	}
	data, err := json.MarshalIndent(a.Store.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding seed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing seed: %w", err)
	}
	return nil
}

// ConnectAsCurrent connects as the actor of the signed-in session.
func (a *App) ConnectAsCurrent(ctx context.Context) (model.Actor, error) {
	actor, err := a.Session.Actor()
	if err != nil {
		return model.Actor{}, err
	}
	return actor, a.Connect(ctx, actor)
}

// Theme resolves the stored theme preference, falling back to the
// configured one.
func (a *App) Theme() theme.Theme {
	name := a.Session.Theme(a.Config.Display.Theme)
	if !theme.Valid(name) {
		a.Log.Warn().Str("theme", name).Msg("unknown theme, using default")
		name = theme.Default
	}
	return theme.New(name)
}

// ReminderInterval is the configured poll interval of the board.
func (a *App) ReminderInterval() time.Duration {
	if sec := a.Config.Reminders.PollIntervalSec; sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return appsync.DefaultInterval
}

// Board builds the live board for actor. Connect must have succeeded.
func (a *App) Board(actor model.Actor) (board.Model, error) {
	if a.Store == nil {
		return board.Model{}, ErrNotConnected
	}
	p := appsync.New(a.Store, a.ReminderInterval(),
		appsync.WithLogger(a.Log.With().Str("component", "reminders").Logger()),
	)
	return board.New(a.Store, actor, a.Theme(), board.WithPoller(p)), nil
}

// RunBoard runs the board full screen until the user quits.
func (a *App) RunBoard(ctx context.Context, actor model.Actor) error {
	m, err := a.Board(actor)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running board: %w", err)
	}
	return nil
}

// Close releases everything in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Close())
		a.metrics = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.table = nil
	a.Store = nil
	return errors.Join(errs...)
}
