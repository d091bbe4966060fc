package daemon

import (
	"context"
	"time"

	"github.com/pedrohsa/wainbox/internal/bus"
	"github.com/pedrohsa/wainbox/internal/config"
	"github.com/pedrohsa/wainbox/internal/inbox"
	"github.com/pedrohsa/wainbox/internal/lock"
	"github.com/pedrohsa/wainbox/internal/logging"
	"github.com/pedrohsa/wainbox/internal/profile"
	"github.com/pedrohsa/wainbox/internal/push"
	"github.com/pedrohsa/wainbox/internal/rest"
	"github.com/pedrohsa/wainbox/internal/status"
	"github.com/pedrohsa/wainbox/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile and configuration passed to the fx module.
type Params struct {
	ProfileName string
	Config      *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRESTClient,
			providePushClient,
			provideController,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.CacheDBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRESTClient(p Params, logger *zap.Logger) *rest.Client {
	return rest.NewClient(p.Config.APIBaseURL, p.Config.BusinessID, logger)
}

func providePushClient(p Params, b *bus.Bus, m *status.Machine, logger *zap.Logger) *push.Client {
	return push.NewClient(p.Config.PushURL, b, m, logger)
}

func provideController(p Params, api *rest.Client, b *bus.Bus, db *store.DB, logger *zap.Logger) *inbox.Controller {
	return inbox.New(inbox.Options{
		API:             api,
		Bus:             b,
		Cache:           db,
		Logger:          logger,
		BusinessID:      p.Config.BusinessID,
		UserID:          p.Config.UserID,
		PageSize:        p.Config.PageSize,
		RefreshInterval: time.Duration(p.Config.RefreshIntervalSeconds) * time.Second,
	})
}

func registerLifecycle(lc fx.Lifecycle, p Params, ctrl *inbox.Controller, pc *push.Client, db *store.DB, lk *lock.Lock, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Controller first so push events have a consumer from the
			// first frame.
			ctrl.Start(context.Background())
			if p.Config.PushURL != "" {
				pc.Start(context.Background())
			} else {
				logger.Info("no push_url configured, running on polling only")
				_ = machine.Transition(status.Degraded)
			}
			logger.Info("daemon started", zap.String("profile", p.ProfileName))
			return nil
		},
		OnStop: func(_ context.Context) error {
			pc.Stop()
			ctrl.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
