// Package app assembles the console components from configuration.
package app

import (
	"fmt"

	"github.com/paularlott/cli"

	"github.com/martinsuchenak/gwconsole/internal/config"
	"github.com/martinsuchenak/gwconsole/internal/gateway"
	"github.com/martinsuchenak/gwconsole/internal/log"
	"github.com/martinsuchenak/gwconsole/internal/metrics"
	"github.com/martinsuchenak/gwconsole/internal/mgmt"
	"github.com/martinsuchenak/gwconsole/internal/session"
	"github.com/martinsuchenak/gwconsole/internal/storage"
)

// Version is reported in the management API User-Agent. Set by main.
var Version = "dev"

// App holds the wired console components. Close releases the store.
type App struct {
	Config   *config.Config
	Store    *storage.SQLiteStorage
	Client   *mgmt.Client
	Sessions *session.Manager
	Gateways *gateway.Accessor
	Cloner   *gateway.Cloner
}

// Open opens the store under cfg.DataDir, wires the components around one
// management API client and restores the persisted session.
func Open(cfg *config.Config) (*App, error) {
	store, err := storage.NewSQLiteStorage(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	log.Debug("Storage opened", "path", store.Path())

	reg := metrics.Get()
	client := mgmt.NewClient(
		mgmt.WithTimeout(cfg.RequestTimeout),
		mgmt.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
		mgmt.WithUserAgent("gwconsole/"+Version),
		mgmt.WithMetrics(reg),
	)

	a := &App{
		Config:   cfg,
		Store:    store,
		Client:   client,
		Sessions: session.NewManager(client, store),
		Gateways: gateway.NewAccessor(client, gateway.WithMetrics(reg)),
		Cloner:   gateway.NewCloner(client, store, gateway.WithMetrics(reg)),
	}

	if _, err := a.Sessions.Restore(); err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// FromCommand loads the configuration from cmd's flags and opens the app.
func FromCommand(cmd *cli.Command) (*App, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}
	return Open(cfg)
}
