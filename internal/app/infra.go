package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Alijeyrad/tabib_backend/config"
	"github.com/Alijeyrad/tabib_backend/internal/feed"
	"github.com/Alijeyrad/tabib_backend/internal/queue"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	svcfile "github.com/Alijeyrad/tabib_backend/internal/service/file"
	"github.com/Alijeyrad/tabib_backend/pkg/ai"
	"github.com/Alijeyrad/tabib_backend/pkg/authorize"
	"github.com/Alijeyrad/tabib_backend/pkg/crypto"
	"github.com/Alijeyrad/tabib_backend/pkg/database"
	"github.com/Alijeyrad/tabib_backend/pkg/observability"
	pasetotoken "github.com/Alijeyrad/tabib_backend/pkg/paseto"
	redispkg "github.com/Alijeyrad/tabib_backend/pkg/redis"
	s3pkg "github.com/Alijeyrad/tabib_backend/pkg/s3"
	"github.com/Alijeyrad/tabib_backend/pkg/util/clock"
	"github.com/Alijeyrad/tabib_backend/pkg/util/password"
)

const loginLockWindow = 15 * time.Minute

// InfraModule provides all infrastructure dependencies.
var InfraModule = fx.Module("infra",
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideLocation),
	fx.Provide(clock.System),
	fx.Provide(ProvideStore),
	fx.Provide(ProvideRedis),
	fx.Provide(ProvideQueueCounter),
	fx.Provide(ProvideSessions),
	fx.Provide(ProvideLoginAttempts),
	fx.Provide(ProvideNatsClient),
	fx.Provide(ProvideFeed),
	fx.Provide(ProvideObjectStore),
	fx.Provide(ProvideAuthorization),
	fx.Provide(ProvideOTel),
	fx.Provide(ProvideMetrics),
	fx.Provide(ProvideAIClient),
	fx.Provide(ProvideFieldCipher),
	fx.Provide(ProvidePasswordHasher),
	fx.Provide(ProvidePasetoManager),
)

func ProvideLogger() *slog.Logger {
	return slog.Default()
}

func ProvideLocation(cfg *config.Config) (*time.Location, error) {
	return cfg.Server.Location()
}

// ProvideStore opens the configured store. The memory driver keeps
// everything in process and is meant for local runs and demos.
func ProvideStore(lc fx.Lifecycle, cfg *config.Config) (repo.Store, error) {
	if database.IsMemory(cfg.Database) {
		slog.Warn("store: using in-memory store, data is lost on restart")
		return repo.NewMemStore(), nil
	}

	drv, err := database.NewDriver(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrations.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := repo.Migrate(ctx, drv, database.ConnFrom(cfg.Database).MigrateOptions()...); err != nil {
			drv.Close()
			return nil, err
		}
	}

	store := repo.NewPGStore(drv)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("closing main database connection")
			return store.Close()
		},
	})
	return store, nil
}

func ProvideRedis(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	rdb, err := redispkg.NewRedisFromCentral(cfg.Redis)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("closing Redis connection")
			return rdb.Close()
		},
	})
	return rdb, nil
}

func ProvideQueueCounter(rdb *redis.Client) queue.Counter {
	return queue.NewRedisCounter(rdb)
}

func ProvideSessions(rdb *redis.Client) *redispkg.Sessions {
	return redispkg.NewSessions(rdb)
}

func ProvideLoginAttempts(rdb *redis.Client) *redispkg.Attempts {
	return redispkg.NewAttempts(rdb, loginLockWindow)
}

// ProvideNatsClient connects to NATS when a URL is configured. A nil
// connection keeps the change feed in process.
func ProvideNatsClient(lc fx.Lifecycle, cfg *config.Config) (*nats.Conn, error) {
	if cfg.Nats.URL == "" {
		return nil, nil
	}
	nc, err := nats.Connect(cfg.Nats.URL,
		nats.Name(cfg.Observability.ServiceName),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("draining NATS connection")
			return nc.Drain()
		},
	})
	return nc, nil
}

func ProvideFeed(nc *nats.Conn, cfg *config.Config, log *slog.Logger) (feed.Bus, feed.Publisher) {
	var bus feed.Bus
	if nc == nil {
		bus = feed.NewLocalBus()
	} else {
		bus = feed.NewNATSBus(nc, cfg.Nats.SubjectPrefix, log)
	}
	return bus, bus
}

// ProvideObjectStore returns S3 storage, or process memory when no bucket is
// configured.
func ProvideObjectStore(lc fx.Lifecycle, cfg *config.Config) (svcfile.ObjectStore, error) {
	if cfg.S3.Bucket == "" {
		slog.Warn("storage: no s3 bucket configured, keeping uploads in memory")
		return svcfile.NewMemoryObjects(), nil
	}
	client, err := s3pkg.New(cfg.S3)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.EnsureBucket(ctx)
		},
	})
	return client, nil
}

func ProvideAuthorization(lc fx.Lifecycle, cfg *config.Config) (authorize.IAuthorization, error) {
	acfg := authorize.FromCentralConfig(cfg.Authorization)

	var (
		auth authorize.IAuthorization
		err  error
	)
	if acfg.PolicyPath != "" {
		enforcer, ferr := authorize.NewFileEnforcer(acfg)
		if ferr != nil {
			return nil, ferr
		}
		auth, err = authorize.NewAuthorization(enforcer, acfg)
		if err != nil {
			return nil, err
		}
		// The file adapter cannot persist single rules; seed on every boot.
		if err := authorize.SeedDefaultPolicies(context.Background(), auth); err != nil {
			return nil, err
		}
	} else {
		enforcer, cleanup, eerr := authorize.NewEnforcer(acfg, database.NewDSN(cfg.CasbinDatabase))
		if eerr != nil {
			return nil, eerr
		}
		auth, err = authorize.NewAuthorization(enforcer, acfg)
		if err != nil {
			cleanup(context.Background())
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				slog.Debug("cleaning up Casbin enforcer")
				cleanup(ctx)
				return nil
			},
		})
	}

	if acfg.EnableAudit {
		auth = authorize.NewAuditedAuthorization(auth, slog.Default())
	}
	return auth, nil
}

func ProvideOTel(lc fx.Lifecycle, cfg *config.Config) (*observability.Provider, error) {
	if !cfg.Observability.Enabled {
		return nil, nil
	}
	provider, err := observability.InitTelemetry(context.Background(), observability.FromCentralConfig(cfg))
	if err != nil {
		return nil, err
	}
	slog.Info("observability initialized",
		"tracing", cfg.Observability.Tracing.Enabled,
		"metrics", cfg.Observability.Metrics.Enabled,
	)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("shutting down observability providers")
			return provider.Shutdown(ctx)
		},
	})
	return provider, nil
}

// ProvideMetrics takes the provider so the counters bind to the installed
// meter provider rather than the no-op default.
func ProvideMetrics(_ *observability.Provider) *observability.ClinicMetrics {
	return observability.NewClinicMetrics()
}

func ProvideAIClient(cfg *config.Config) *ai.Client {
	return ai.New(ai.FromCentralConfig(cfg.AI))
}

// ProvideFieldCipher returns nil when no encryption key is configured;
// national ids are then refused at intake.
func ProvideFieldCipher(cfg *config.Config) (*crypto.FieldCipher, error) {
	if cfg.Authentication.EncryptionKey == "" {
		slog.Warn("crypto: no encryption key configured, national ids disabled")
		return nil, nil
	}
	return crypto.NewFieldCipherFromHex(cfg.Authentication.EncryptionKey)
}

func ProvidePasswordHasher(cfg *config.Config) *password.Hasher {
	return password.NewHasher(password.FromCentralConfig(cfg.Password))
}

func ProvidePasetoManager(cfg *config.Config) (*pasetotoken.Manager, error) {
	return pasetotoken.FromCentralConfig(cfg.Authentication)
}
