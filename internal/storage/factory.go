package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/open-apime/fleet/db"
	"github.com/open-apime/fleet/internal/config"
	"github.com/open-apime/fleet/internal/pkg/queue"
	queue_memory "github.com/open-apime/fleet/internal/pkg/queue/memory"
	queue_redis "github.com/open-apime/fleet/internal/pkg/queue/redis"
	"github.com/open-apime/fleet/internal/pkg/ratelimiter"
	limiter_memory "github.com/open-apime/fleet/internal/pkg/ratelimiter/memory"
	limiter_redis "github.com/open-apime/fleet/internal/pkg/ratelimiter/redis"
	"github.com/open-apime/fleet/internal/storage/memory"
	"github.com/open-apime/fleet/internal/storage/migrate"
	"github.com/open-apime/fleet/internal/storage/postgres"
	storage_redis "github.com/open-apime/fleet/internal/storage/redis"
	"github.com/open-apime/fleet/internal/storage/sqlite"
)

// SeenSet responde se uma chave já foi vista dentro da janela de deduplicação.
type SeenSet interface {
	Seen(ctx context.Context, key string) (bool, error)
}

type Repositories struct {
	Instance     InstanceRepository
	EventLog     EventLogRepository
	RedisClient  *storage_redis.Client // nil quando o Redis está desabilitado
	WebhookQueue queue.Queue
	RateLimiter  ratelimiter.Limiter
	SeenMessages SeenSet

	closers []func()
}

// Close libera conexões de banco e do Redis. Chamar após parar os workers.
func (r *Repositories) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func NewRepositories(cfg config.Config, log *zap.Logger) (*Repositories, error) {
	log.Info("inicializando repositórios", zap.String("driver", cfg.Storage.Driver))

	repos := &Repositories{}

	if cfg.Redis.Enabled {
		log.Info("inicializando Redis...")
		storeRedis, err := storage_redis.New(cfg.Redis, log)
		if err != nil {
			log.Error("erro ao conectar com Redis", zap.Error(err))
			return nil, err
		}

		rdb := storeRedis.RDB()
		repos.RedisClient = storeRedis
		repos.WebhookQueue = queue_redis.NewQueue(rdb, cfg.Webhook.QueueKey)
		repos.RateLimiter = limiter_redis.NewLimiter(rdb)
		repos.SeenMessages = storage_redis.NewSeenSet(storeRedis, "webhook:seen:", cfg.Webhook.DedupTTL)
		repos.closers = append(repos.closers, func() { _ = storeRedis.Close() })
		log.Info("Redis conectado, fila, limiter e deduplicação configurados")
	} else {
		log.Info("usando implementações em memória (Redis desabilitado)")
		memQueue := queue_memory.NewQueue(cfg.Webhook.QueueBuffer)
		memLimiter := limiter_memory.NewLimiter()
		repos.WebhookQueue = memQueue
		repos.RateLimiter = memLimiter
		repos.SeenMessages = memory.NewSeenSet(cfg.Webhook.QueueBuffer, cfg.Webhook.DedupTTL)
		repos.closers = append(repos.closers, memLimiter.Stop, func() { _ = memQueue.Close() })
	}

	switch cfg.Storage.Driver {
	case "sqlite", "":
		log.Debug("criando conexão com SQLite")
		conn, err := sqlite.New(cfg.Storage.DataDir, log)
		if err != nil {
			log.Error("erro ao conectar com SQLite", zap.Error(err))
			repos.Close()
			return nil, err
		}

		repos.closers = append(repos.closers, func() { _ = conn.Close() })
		if cfg.Storage.AutoMigrate {
			if _, err := migrate.SQLite(context.Background(), conn.Conn, db.Migrations, "migrations/sqlite", log); err != nil {
				repos.Close()
				return nil, err
			}
		}

		repos.Instance = sqlite.NewInstanceRepository(conn)
		repos.EventLog = sqlite.NewEventLogRepository(conn)
		log.Info("repositórios SQLite criados com sucesso", zap.String("data_dir", cfg.Storage.DataDir))
		return repos, nil

	case "postgres":
		log.Debug("criando conexão com PostgreSQL")
		conn, err := postgres.New(cfg.DB, log)
		if err != nil {
			log.Error("erro ao conectar com PostgreSQL", zap.Error(err))
			repos.Close()
			return nil, err
		}

		repos.closers = append(repos.closers, conn.Close)
		if cfg.Storage.AutoMigrate {
			if _, err := migrate.Postgres(context.Background(), conn.Pool, db.Migrations, "migrations/postgres", log); err != nil {
				repos.Close()
				return nil, err
			}
		}

		repos.Instance = postgres.NewInstanceRepository(conn)
		repos.EventLog = postgres.NewEventLogRepository(conn)
		log.Info("repositórios PostgreSQL criados com sucesso")
		return repos, nil

	default:
		log.Error("driver de storage desconhecido", zap.String("driver", cfg.Storage.Driver))
		repos.Close()
		return nil, &ErrUnknownDriver{Driver: cfg.Storage.Driver}
	}
}

type ErrUnknownDriver struct {
	Driver string
}

func (e *ErrUnknownDriver) Error() string {
	return "storage: driver desconhecido: " + e.Driver
}
