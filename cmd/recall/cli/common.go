package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/credential"
	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/salience"
	"github.com/felixgeelhaar/recall/internal/store"
	"github.com/felixgeelhaar/recall/internal/store/postgres"
	"github.com/felixgeelhaar/recall/internal/synonym"
)

func newObserver(out io.Writer) *observe.Observer {
	if ciMode {
		return observe.NewJSON(out, verbose)
	}
	return observe.New(out, verbose)
}

// loadConfig reads .env, the config file and RECALL_* variables, in that order.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(".env"); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = dbPath
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		db, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// overlaySecrets fills API keys missing from cfg with the encrypted values
// kept in the configuration table.
func overlaySecrets(cfg *config.Config, s store.Store) error {
	if cfg.Provider.APIKey != "" && cfg.Dictionary.APIKey != "" {
		return nil
	}
	m, err := credential.NewManager()
	if err != nil {
		return err
	}
	v := credential.NewVault(s, m)
	fill := func(key string, dst *string) error {
		if *dst != "" {
			return nil
		}
		val, err := v.Get(key)
		if err != nil {
			return err
		}
		*dst = val
		return nil
	}
	if err := fill(credential.ProviderAPIKey, &cfg.Provider.APIKey); err != nil {
		return err
	}
	return fill(credential.DictionaryAPIKey, &cfg.Dictionary.APIKey)
}

// app is everything a command needs to run rounds.
type app struct {
	cfg     *config.Config
	obs     *observe.Observer
	store   store.Store
	engine  memory.Engine
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// runtime returns a guarded runtime over the app's engine.
func (a *app) runtime() *runtime.Runtime {
	rt := runtime.New(a.engine, a.obs, nil)
	rt.SetGuard(guard.New(a.cfg.Guard))
	return rt
}

// newApp wires configuration, store, collaborators and the engine.
func newApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	obs := newObserver(logOut)
	a := &app{cfg: cfg, obs: obs}
	a.closers = append(a.closers, obs.Close)

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)

	if err := overlaySecrets(cfg, s); err != nil {
		_ = a.Close()
		return nil, err
	}

	res := cfg.Check()
	for _, w := range res.Warnings {
		obs.Log().Warn().Str("warning", w).Msg("configuration")
	}
	if err := res.Err(); err != nil {
		_ = a.Close()
		return nil, err
	}

	deps, err := a.collaborators()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	engine, err := memory.New(cfg.Memory, deps)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.engine = engine

	obs.Log().Info().
		Str("engine", engine.Name()).
		Str("store", cfg.Store.Driver).
		Str("generator", deps.Generator.Name()).
		Msg("memory engine ready")
	return a, nil
}

func (a *app) collaborators() (memory.Deps, error) {
	cfg := a.cfg
	gen, err := provider.NewGenerator(cfg.Provider)
	if err != nil {
		return memory.Deps{}, err
	}
	if c, ok := gen.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	deps := memory.Deps{
		Store:     a.store,
		Generator: gen,
		Observer:  a.obs,
	}

	switch cfg.Memory.Strategy {
	case config.StrategyKeyword:
		timeout := time.Duration(cfg.Attention.TimeoutSeconds) * time.Second
		deps.Attention = salience.NewHTTPAttention(cfg.Attention.URL, timeout)
		if cfg.Dictionary.APIKey != "" {
			yandex := synonym.NewYandex(cfg.Dictionary.APIKey, cfg.Dictionary.BaseURL, a.obs.Log())
			cached, err := synonym.NewCached(yandex, cfg.Dictionary.CacheSize, a.obs.Log())
			if err != nil {
				return memory.Deps{}, err
			}
			a.closers = append(a.closers, func() error { cached.Close(); return nil })
			deps.Synonyms = cached
		}
	case config.StrategyEmbedding:
		emb, closeFn, err := newEmbedder(cfg.Provider)
		if err != nil {
			return memory.Deps{}, err
		}
		if closeFn != nil {
			a.closers = append(a.closers, closeFn)
		}
		deps.Embedder = emb
	}
	return deps, nil
}

// newEmbedder builds the configured sentence embedder. The returned close
// function may be nil.
func newEmbedder(cfg config.Provider) (provider.Embedder, func() error, error) {
	if cfg.Embedder == "onnx" {
		return newONNXEmbedder(cfg)
	}
	emb, err := provider.NewEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	if c, ok := emb.(io.Closer); ok {
		return emb, c.Close, nil
	}
	return emb, nil, nil
}
