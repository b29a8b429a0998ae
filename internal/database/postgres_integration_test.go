package database

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"
)

// getPostgresTestConfig returns PostgreSQL config if available, nil otherwise.
// Set these environment variables to run PostgreSQL tests:
//
//	DROPEFF_TEST_POSTGRES=1
//	DROPEFF_TEST_POSTGRES_HOST (default: localhost)
//	DROPEFF_TEST_POSTGRES_PORT (default: 5432)
//	DROPEFF_TEST_POSTGRES_USER (default: dropeff)
//	DROPEFF_TEST_POSTGRES_PASSWORD (default: dropeff)
//	DROPEFF_TEST_POSTGRES_DATABASE (default: dropeff_test)
func getPostgresTestConfig() *Config {
	if os.Getenv("DROPEFF_TEST_POSTGRES") == "" {
		return nil
	}

	env := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	port := 5432
	if portStr := os.Getenv("DROPEFF_TEST_POSTGRES_PORT"); portStr != "" {
		fmt.Sscanf(portStr, "%d", &port)
	}

	return &Config{
		Driver: "postgres",
		Postgres: PostgresConfig{
			Host:            env("DROPEFF_TEST_POSTGRES_HOST", "localhost"),
			Port:            port,
			User:            env("DROPEFF_TEST_POSTGRES_USER", "dropeff"),
			Password:        env("DROPEFF_TEST_POSTGRES_PASSWORD", "dropeff"),
			Database:        env("DROPEFF_TEST_POSTGRES_DATABASE", "dropeff_test"),
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 1 * time.Minute,
		},
	}
}

// setupPostgresTestDB skips the test if PostgreSQL is not configured,
// otherwise opens it with an empty archive.
func setupPostgresTestDB(t *testing.T) *Database {
	cfg := getPostgresTestConfig()
	if cfg == nil {
		t.Skip("Skipping PostgreSQL test: DROPEFF_TEST_POSTGRES not set")
	}

	db, err := OpenWithConfig(*cfg)
	if err != nil {
		t.Fatalf("Failed to open PostgreSQL database: %v", err)
	}

	clean := func() {
		// Detail tables cascade.
		if _, err := db.db.Exec("DELETE FROM runs"); err != nil {
			t.Logf("Note: could not clean runs: %v", err)
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		db.Close()
	})

	return db
}

func TestPostgres_OpenWithConfig(t *testing.T) {
	db := setupPostgresTestDB(t)

	var result int
	if err := db.db.QueryRow("SELECT 1").Scan(&result); err != nil {
		t.Fatalf("Failed to query PostgreSQL: %v", err)
	}
	if result != 1 {
		t.Errorf("Expected 1, got %d", result)
	}

	if stats := db.db.Stats(); stats.MaxOpenConnections != 10 {
		t.Errorf("Expected MaxOpenConns 10, got %d", stats.MaxOpenConnections)
	}
}

func TestPostgres_SaveRunAndLoadResult(t *testing.T) {
	db := setupPostgresTestDB(t)
	res := computeResult(t, 1.0)

	id, err := db.SaveRun("pg-digest", "all", res)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	loaded, err := db.LoadResult(id)
	if err != nil {
		t.Fatalf("LoadResult: %v", err)
	}
	if !reflect.DeepEqual(loaded, res) {
		t.Errorf("loaded result differs:\ngot  %+v\nwant %+v", loaded, res)
	}
}

func TestPostgres_ImportRunResetsSequence(t *testing.T) {
	db := setupPostgresTestDB(t)
	res := computeResult(t, 1.0)

	run := Run{ID: 500, Digest: "imported", Policy: "all", Threshold: 1.0, CreatedAt: time.Now().UTC()}
	if err := db.ImportRun(run, res); err != nil {
		t.Fatalf("ImportRun: %v", err)
	}
	if err := db.ImportRun(run, res); !errors.Is(err, ErrRunExists) {
		t.Errorf("expected ErrRunExists, got %v", err)
	}

	id, err := db.SaveRun("next", "all", res)
	if err != nil {
		t.Fatal(err)
	}
	if id <= 500 {
		t.Errorf("new run id %d should follow the imported id", id)
	}
}

func TestPostgres_ConcurrentSaves(t *testing.T) {
	db := setupPostgresTestDB(t)
	res := computeResult(t, 1.0)

	const workers = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			if _, err := db.SaveRun(fmt.Sprintf("digest-%d", worker), "all", res); err != nil {
				errs <- fmt.Errorf("worker %d: %w", worker, err)
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	runs, err := db.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != workers {
		t.Errorf("Expected %d runs, got %d", workers, len(runs))
	}
}
