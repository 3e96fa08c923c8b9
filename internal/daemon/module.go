package daemon

import (
	"context"
	"time"

	"github.com/dlemos/chatdesk/internal/bus"
	"github.com/dlemos/chatdesk/internal/config"
	"github.com/dlemos/chatdesk/internal/lock"
	"github.com/dlemos/chatdesk/internal/logging"
	"github.com/dlemos/chatdesk/internal/outbox"
	"github.com/dlemos/chatdesk/internal/profile"
	"github.com/dlemos/chatdesk/internal/push"
	"github.com/dlemos/chatdesk/internal/rest"
	"github.com/dlemos/chatdesk/internal/status"
	"github.com/dlemos/chatdesk/internal/store"
	intsync "github.com/dlemos/chatdesk/internal/sync"
	"github.com/dlemos/chatdesk/internal/web"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// refreshInterval is the periodic full-refresh cadence; push hints
// drive everything faster than this.
const refreshInterval = 60 * time.Second

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	Config      *config.Config
	Identity    profile.Identity
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
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
			provideListener,
			provideSyncEngine,
			provideSender,
			provideWebServer,
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

// The cache is only opened once the profile lock is held.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
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

func provideRESTClient(p Params) *rest.Client {
	return rest.New(p.Config.APIBaseURL, p.Config.Token)
}

func provideListener(p Params, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *push.Listener {
	return push.NewListener(p.Config.SocketURL, p.Config.Token, b, machine, logger)
}

func provideSyncEngine(p Params, db *store.DB, client *rest.Client, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, client, b, logger, p.Config.PageSize, refreshInterval)
}

func provideSender(p Params, db *store.DB, client *rest.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, client, b, p.Identity, logger)
}

func provideWebServer(p Params, db *store.DB, sender *outbox.Sender, machine *status.Machine, logger *zap.Logger) *web.Server {
	return web.NewServer(p.Config.ListenAddr, p.Config.Token, db, sender, p.Identity, machine, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *web.Server, lk *lock.Lock, db *store.DB, listener *push.Listener, engine *intsync.Engine, sender *outbox.Sender, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The engine must be subscribed before the listener can
			// publish its first hint.
			engine.Start(context.Background())
			sender.Start(context.Background())
			listener.Start(context.Background())
			srv.Start()
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			listener.Stop()
			sender.Stop()
			engine.Stop()
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("error stopping admin API", zap.Error(err))
			}
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
