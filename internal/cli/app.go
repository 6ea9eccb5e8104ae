package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/idsync/internal/config"
	"github.com/dmitrijs2005/idsync/internal/cookiesync"
	"github.com/dmitrijs2005/idsync/internal/events"
	"github.com/dmitrijs2005/idsync/internal/filex"
	"github.com/dmitrijs2005/idsync/internal/forwarders"
	"github.com/dmitrijs2005/idsync/internal/identity"
	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/dmitrijs2005/idsync/internal/persistence"
	"github.com/dmitrijs2005/idsync/internal/store"
	"github.com/dmitrijs2005/idsync/internal/transport"
	"github.com/dmitrijs2005/idsync/internal/user"
)

// dataDir holds relative sqlite paths, under the working directory.
const dataDir = ".idsync"

var errNoUser = errors.New("no current user, run identify or login first")

// App wires one resolver over the configured store.
type App struct {
	cfg      *config.Config
	store    store.Store
	resolver *identity.Resolver
	log      logging.Logger
}

func newApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	opts := cfg.StoreOptions()
	if opts.Backend == store.BackendSQLite && !filepath.IsAbs(opts.SQLitePath) {
		dir, err := filex.EnsureSubdDir(dataDir)
		if err != nil {
			return nil, fmt.Errorf("data dir: %w", err)
		}
		opts.SQLitePath = filepath.Join(dir, opts.SQLitePath)
	}

	st, err := store.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	r := identity.NewResolver(identity.Config{
		APIKey:          cfg.APIKey,
		DevelopmentMode: cfg.DevelopmentMode,
		MaxProducts:     cfg.MaxProducts,
		OptOut:          cfg.OptOut,
	}, identity.Deps{
		Transport:   transport.New(cfg.IdentityURL, cfg.APIKey, cfg.RequestTimeout),
		Persistence: persistence.NewManager(st, log),
		Forwarders:  forwarders.NewRegistry(log, forwarders.NewLogForwarder(log)),
		CookieSync:  cookiesync.NewLogSyncer(log),
		Sink:        events.NewLogSink(log),
		Log:         log,
	})

	return &App{cfg: cfg, store: st, resolver: r, log: log}, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

// load reads the stored session without calling the identity service.
func (a *App) load(ctx context.Context) error {
	return a.resolver.Load(ctx)
}

// currentUser loads the session and returns its user.
func (a *App) currentUser(ctx context.Context) (*user.User, error) {
	if err := a.load(ctx); err != nil {
		return nil, err
	}
	u := a.resolver.CurrentUser()
	if u == nil {
		return nil, errNoUser
	}
	return u, nil
}

// await waits for p, bounded by the request timeout, and surfaces the
// request error.
func (a *App) await(ctx context.Context, p *identity.Pending) (identity.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout+time.Second)
	defer cancel()

	res, err := p.Wait(ctx)
	if err != nil {
		return res, fmt.Errorf("waiting for identity response: %w", err)
	}
	return res, res.Err
}
