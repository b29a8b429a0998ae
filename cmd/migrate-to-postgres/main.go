// migrate-to-postgres copies the run archive from SQLite to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/migrate-to-postgres \
//	    -sqlite data/dropefficiency.db \
//	    -pg-host localhost \
//	    -pg-port 5432 \
//	    -pg-user dropeff \
//	    -pg-password dropeff \
//	    -pg-database dropeff
//
// Runs already present in PostgreSQL (same id) are skipped, so the tool can
// be re-run after a partial migration.
package main

import (
	"errors"
	"flag"
	"log"

	"github.com/lawnchairsociety/dropefficiency/internal/database"
	"github.com/lawnchairsociety/dropefficiency/internal/efficiency"
)

// stats counts what a migration did.
type stats struct {
	migrated int
	skipped  int
	rows     int
}

func main() {
	sqlitePath := flag.String("sqlite", "data/dropefficiency.db", "Path to SQLite database")
	pgHost := flag.String("pg-host", "localhost", "PostgreSQL host")
	pgPort := flag.Int("pg-port", 5432, "PostgreSQL port")
	pgUser := flag.String("pg-user", "dropeff", "PostgreSQL user")
	pgPassword := flag.String("pg-password", "dropeff", "PostgreSQL password")
	pgDatabase := flag.String("pg-database", "dropeff", "PostgreSQL database name")
	pgSSLMode := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode")
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()

	log.Println("SQLite to PostgreSQL Migration Tool")
	log.Println("====================================")

	log.Printf("Opening SQLite database: %s", *sqlitePath)
	src, err := database.Open(*sqlitePath)
	if err != nil {
		log.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer src.Close()

	var dst *database.Database
	if *dryRun {
		log.Println("DRY RUN MODE - No changes will be made")
	} else {
		pg := database.DefaultPostgresConfig()
		pg.Host = *pgHost
		pg.Port = *pgPort
		pg.User = *pgUser
		pg.Password = *pgPassword
		pg.Database = *pgDatabase
		pg.SSLMode = *pgSSLMode

		log.Printf("Opening PostgreSQL database: %s@%s:%d/%s", *pgUser, *pgHost, *pgPort, *pgDatabase)
		dst, err = database.OpenWithConfig(database.Config{
			Driver:   string(database.DialectPostgres),
			Postgres: pg,
		})
		if err != nil {
			log.Fatalf("Failed to open PostgreSQL database: %v", err)
		}
		defer dst.Close()
	}

	s, err := migrate(src, dst)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("====================================")
	log.Printf("Migration complete! Runs migrated: %d, skipped: %d, detail rows: %d", s.migrated, s.skipped, s.rows)
	if *dryRun {
		log.Println("(DRY RUN - No actual changes were made)")
	}
}

// migrate copies every run of src into dst, keeping run ids. A nil dst only
// reads and counts.
func migrate(src, dst *database.Database) (stats, error) {
	var s stats

	runs, err := src.ListRuns()
	if err != nil {
		return s, err
	}

	for _, run := range runs {
		res, err := src.LoadResult(run.ID)
		if err != nil {
			return s, err
		}
		rows := detailRows(res)
		log.Printf("Migrating run %d (%d detail rows)", run.ID, rows)

		if dst != nil {
			err := dst.ImportRun(run, res)
			if errors.Is(err, database.ErrRunExists) {
				log.Printf("  Run %d already present, skipping", run.ID)
				s.skipped++
				continue
			}
			if err != nil {
				return s, err
			}
		}
		s.migrated++
		s.rows += rows
	}

	return s, nil
}

// detailRows is the number of rows a result occupies in the detail tables.
func detailRows(res *efficiency.Result) int {
	n := len(res.BestAPD) + len(res.Efficiency)
	for _, nodes := range res.Locations {
		n += len(nodes)
	}
	for _, list := range res.RankedLocations {
		n += len(list)
	}
	return n
}
