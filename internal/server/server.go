package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/duelquiz/internal/api"
	"github.com/victornm/duelquiz/internal/catalog"
	"github.com/victornm/duelquiz/internal/event"
	"github.com/victornm/duelquiz/internal/match"
	"github.com/victornm/duelquiz/internal/notify"
	"github.com/victornm/duelquiz/internal/session"
	"github.com/victornm/duelquiz/internal/storage"
	"github.com/victornm/duelquiz/internal/storage/pgstore"
	"github.com/victornm/duelquiz/internal/storage/redisstore"
	"github.com/victornm/duelquiz/internal/telemetry"
)

const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type PostgresConfig struct {
	Addr string
	User string
	Pass string
	Name string
}

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level  string
		Format string
	}

	Storage struct {
		// Driver selects where sessions live: "redis" or "postgres".
		Driver string
	}

	Redis struct {
		Catalog RedisConfig
		Session RedisConfig
		Pubsub  RedisConfig
	}

	Postgres struct {
		Session PostgresConfig
	}

	Game struct {
		QuestionCount int  `mapstructure:"question_count"`
		ScanLimit     int  `mapstructure:"scan_limit"`
		SeedDefault   bool `mapstructure:"seed_default"`
	}
}

// DefaultConfig is the configuration before the file and environment are applied.
func DefaultConfig() Config {
	var c Config

	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Storage.Driver = DriverRedis

	c.Redis.Catalog = RedisConfig{Addrs: []string{"localhost:6379"}, Prefix: "duelquiz:catalog"}
	c.Redis.Session = RedisConfig{Addrs: []string{"localhost:6379"}, Prefix: "duelquiz"}
	c.Redis.Pubsub = RedisConfig{Addrs: []string{"localhost:6379"}, Prefix: "duelquiz:pubsub"}

	c.Game.QuestionCount = 5
	c.Game.ScanLimit = 5
	c.Game.SeedDefault = true

	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			catalog redis.UniversalClient
			session redis.UniversalClient
			pubsub  redis.UniversalClient
		}

		postgres struct {
			session *pgxpool.Pool
		}
	}

	store    storage.Store
	notifier *notify.Channel

	service struct {
		catalog *catalog.Service
		match   *match.Service
		session *session.Service
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(ctx context.Context, c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(ctx); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()

	if c.Game.SeedDefault {
		if err := s.seedDefault(ctx); err != nil {
			return nil, fmt.Errorf("server: seed catalog: %w", err)
		}
	}

	telemetry.NewMetrics(prometheus.DefaultRegisterer).Subscribe(s.eb)

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra(ctx context.Context) error {
	if err := s.initRedis(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	switch s.c.Storage.Driver {
	case DriverRedis:
		s.store = redisstore.New(redisstore.Config{
			Redis:  s.infra.redis.session,
			Prefix: s.c.Redis.Session.Prefix,
		})
	case DriverPostgres:
		if err := s.initPostgres(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		pg := pgstore.New(pgstore.Config{DB: s.infra.postgres.session})
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		s.store = pg
	default:
		return fmt.Errorf("unknown storage driver %q", s.c.Storage.Driver)
	}

	return nil
}

func (s *Server) initRedis(ctx context.Context) error {
	var err error
	s.infra.redis.catalog, err = connectRedis(ctx, s.c.Redis.Catalog)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	s.infra.redis.pubsub, err = connectRedis(ctx, s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	if s.c.Storage.Driver == DriverRedis {
		s.infra.redis.session, err = connectRedis(ctx, s.c.Redis.Session)
		if err != nil {
			return fmt.Errorf("session: %w", err)
		}
	}

	return nil
}

func connectRedis(ctx context.Context, c RedisConfig) (redis.UniversalClient, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Addrs,
		Password: c.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return nil, err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *Server) initPostgres(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c := s.c.Postgres.Session
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres.session = db
	return nil
}

func (s *Server) initService() {
	s.service.catalog = catalog.NewService(catalog.Config{
		Redis:  s.infra.redis.catalog,
		Prefix: s.c.Redis.Catalog.Prefix,
	})

	s.notifier = notify.NewChannel(notify.Config{
		Redis:  s.infra.redis.pubsub,
		Prefix: s.c.Redis.Pubsub.Prefix,
	})

	s.service.match = match.NewService(match.Config{
		Store:         s.store,
		Catalog:       s.service.catalog,
		Notifier:      s.notifier,
		EventBus:      s.eb,
		QuestionCount: s.c.Game.QuestionCount,
		ScanLimit:     s.c.Game.ScanLimit,
	})

	s.service.session = session.NewService(session.Config{
		Store:    s.store,
		Catalog:  s.service.catalog,
		Notifier: s.notifier,
		EventBus: s.eb,
	})
}

func (s *Server) seedDefault(ctx context.Context) error {
	qs, err := catalog.DefaultSeed()
	if err != nil {
		return err
	}

	n, err := s.service.catalog.Seed(ctx, qs)
	if err != nil {
		return err
	}

	if n > 0 {
		slog.InfoContext(ctx, "server: seeded default catalog", "questions", n)
	}
	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor()...)

	api.New(api.Config{
		GRPC:     s.grpc,
		HTTP:     e,
		Match:    s.service.match,
		Session:  s.service.session,
		Notifier: s.notifier,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc server: listen: %w", err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return eg.Wait()
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.catalog, s.infra.redis.session, s.infra.redis.pubsub} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}
	if s.infra.postgres.session != nil {
		s.infra.postgres.session.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
