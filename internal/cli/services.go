package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizroom/internal/config"
	"quizroom/internal/domain"
	"quizroom/internal/infra/memory"
	pgstore "quizroom/internal/infra/postgres"
	redisstore "quizroom/internal/infra/redis"
)

// quizRepository is what the CLI needs from either cache.
type quizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// roomRegistry is the union of what the host registers and the dialer resolves.
type roomRegistry interface {
	Register(ctx context.Context, roomCode, hostURL string) error
	Resolve(ctx context.Context, roomCode string) (string, error)
	Release(ctx context.Context, roomCode string) error
}

// services holds the optional backing stores selected by config.
type services struct {
	cfg    config.Config
	logger *slog.Logger
	redis  *redis.Client
	pool   *pgxpool.Pool
	db     *bun.DB
}

func openServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, error) {
	s := &services{cfg: cfg, logger: logger}
	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.pool = pool
		s.db = openBun(cfg.Postgres.URL)
	}
	return s, nil
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func (s *services) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// quizzes picks Postgres or the quiz directory as the library, cached in Redis
// when configured and in memory otherwise.
func (s *services) quizzes() quizRepository {
	var loader memory.QuizLoader = memory.NewFileQuizLoader(s.cfg.Quiz.Dir)
	if s.pool != nil {
		loader = pgstore.NewQuizLoader(s.pool)
	}
	ttl := config.Duration(s.cfg.Quiz.TTL, 10*time.Minute)
	if s.redis != nil {
		return redisstore.NewQuizRepository(s.redis, loader, ttl, s.logger)
	}
	return memory.NewQuizRepository(loader, ttl)
}

// registry returns the shared Redis registry, or a process-local one.
func (s *services) registry() roomRegistry {
	ttl := config.Duration(s.cfg.Redis.TTL, 2*time.Hour)
	if s.redis != nil {
		return redisstore.NewRoomRegistry(s.redis, ttl)
	}
	return memory.NewRoomRegistry(ttl)
}

// loadQuiz treats ref as a file when one exists at that path and as a library
// ID otherwise. The result is normalized.
func (s *services) loadQuiz(ctx context.Context, ref string) (domain.Quiz, error) {
	data, err := os.ReadFile(ref)
	switch {
	case err == nil:
		quiz, err := domain.ParseQuiz(ref, data)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("%s: %w", ref, err)
		}
		return domain.Normalize(quiz), nil
	case !errors.Is(err, fs.ErrNotExist):
		return domain.Quiz{}, err
	}
	quiz, err := s.quizzes().GetQuiz(ctx, ref)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("quiz %s: %w", ref, err)
	}
	return domain.Normalize(quiz), nil
}
