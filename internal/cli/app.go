// Package cli implements the wincloud command tree: create, extract,
// delete, and status, plus the wiring that turns configuration into an
// engine and a transfer client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wincloud/wincloud/internal/config"
	"github.com/wincloud/wincloud/internal/cryptox"
	"github.com/wincloud/wincloud/internal/engine"
	"github.com/wincloud/wincloud/internal/filex"
	"github.com/wincloud/wincloud/internal/logging"
	"github.com/wincloud/wincloud/internal/transfer"
)

const configFileName = "config.json"

// App carries the CLI's shared state. One App serves one process
// invocation.
type App struct {
	cfg *config.Config
	log logging.Logger

	verbose       bool
	usePassphrase bool
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("cli: nil config")
	}
	return &App{cfg: cfg, log: logging.NewDefault(false)}, nil
}

// Run executes the command tree and returns the terminal error, if any.
func (a *App) Run(ctx context.Context) error {
	return a.newRootCmd(ctx).Execute()
}

// setup prepares the data dir and seeds a user-editable config file on the
// first run.
func (a *App) setup(ctx context.Context) error {
	if err := filex.EnsureDir(a.cfg.DataDir); err != nil {
		return fmt.Errorf("prepare data dir: %w", err)
	}

	path := filepath.Join(a.cfg.DataDir, configFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := a.cfg.Save(path); err != nil {
			return fmt.Errorf("seed config file: %w", err)
		}
		a.log.Info(ctx, "wrote default config", "path", path)
	}
	return nil
}

func (a *App) newTransfer() (*transfer.Client, error) {
	return transfer.New(transfer.Config{
		ServerURL:  a.cfg.ServerURL,
		APIVersion: a.cfg.APIVersion,
		Timeout:    a.cfg.RequestTimeout,
		MaxRetries: a.cfg.MaxRetries,
		ChunkSize:  a.cfg.ChunkSize,
		DataDir:    a.cfg.DataDir,
	}, a.log)
}

func (a *App) newEngine(remote engine.Transfer) (*engine.Engine, error) {
	provider, err := a.keyProvider()
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Config{
		CompressionLevel: a.cfg.CompressionLevel,
		LocalPercentage:  a.cfg.LocalPercentage,
	}, cryptox.NewManager(provider), remote, a.log)
}

// keyProvider selects the encryption key source: a generated key persisted
// under the data dir by default, or a passphrase-derived key when
// --passphrase is set. The derivation salt is persisted so the same
// passphrase yields the same key on later runs.
func (a *App) keyProvider() (cryptox.KeyProvider, error) {
	store := cryptox.NewFileKeyStore(a.cfg.DataDir)
	if !a.usePassphrase {
		return store, nil
	}

	pass, err := readPassphrase("Passphrase: ")
	if err != nil {
		return nil, err
	}

	salt, err := store.LoadSalt()
	if err != nil {
		key, salt, err := cryptox.DeriveKey(pass)
		if err != nil {
			return nil, fmt.Errorf("derive key: %w", err)
		}
		if err := store.SaveSalt(salt); err != nil {
			return nil, err
		}
		return cryptox.StaticKey(key), nil
	}

	return cryptox.StaticKey(cryptox.DeriveKeyWithSalt(pass, salt)), nil
}
