// Package dbtest starts throwaway Postgres and Redis containers for tests.
// Tests are skipped when no Docker daemon is reachable.
package dbtest

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/irsalhamdi/e-learning/database"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Logger returns a logger that discards output unless the test runs verbose.
func Logger(t *testing.T) *logrus.Logger {
	log := logrus.New()
	if !testing.Verbose() {
		log.SetOutput(io.Discard)
	}
	return log
}

func pool(t *testing.T) *dockertest.Pool {
	t.Helper()

	p, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := p.Client.Ping(); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}
	p.MaxWait = 90 * time.Second
	return p
}

// NewDB starts Postgres, applies the migrations and returns an open pool.
// The container is purged when the test ends.
func NewDB(t *testing.T, name string) *sqlx.DB {
	t.Helper()
	p := pool(t)

	res, err := p.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_DB=" + name,
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("starting postgres: %v", err)
	}
	t.Cleanup(func() { _ = p.Purge(res) })
	_ = res.Expire(300)

	cfg := database.Config{
		User:         "postgres",
		Password:     "postgres",
		Host:         res.GetHostPort("5432/tcp"),
		Name:         name,
		MaxIdleConns: 2,
		MaxOpenConns: 20,
		DisableTLS:   true,
	}

	var db *sqlx.DB
	err = p.Retry(func() error {
		var err error
		db, err = database.Open(cfg)
		if err != nil {
			return err
		}
		return database.StatusCheck(context.Background(), db)
	})
	if err != nil {
		t.Fatalf("waiting for postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

// NewRedis starts Redis and returns a connected client.
func NewRedis(t *testing.T) *redis.Client {
	t.Helper()
	p := pool(t)

	res, err := p.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("starting redis: %v", err)
	}
	t.Cleanup(func() { _ = p.Purge(res) })
	_ = res.Expire(300)

	rdb := redis.NewClient(&redis.Options{Addr: res.GetHostPort("6379/tcp")})
	err = p.Retry(func() error {
		return rdb.Ping(context.Background()).Err()
	})
	if err != nil {
		t.Fatalf("waiting for redis: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// Truncate empties every table between subtests sharing one container.
func Truncate(t *testing.T, db *sqlx.DB) {
	t.Helper()
	const q = `TRUNCATE progress_entries, progress, enrollments, courses, users`
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("truncating: %v", fmt.Errorf("%s: %w", q, err))
	}
}
