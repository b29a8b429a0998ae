package database

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lawnchairsociety/dropefficiency/internal/efficiency"
)

// ErrRunNotFound is returned when a run lookup fails.
var ErrRunNotFound = errors.New("run not found")

// ErrNoRuns is returned by GetLatestRun on an empty archive.
var ErrNoRuns = errors.New("no runs archived")

// ErrRunExists is returned by ImportRun when the run id is already taken.
var ErrRunExists = errors.New("run already exists")

// Run is the summary row of one archived computation.
type Run struct {
	ID        int64
	Digest    string
	Policy    string
	Threshold float64
	Items     int
	Nodes     int
	Unranked  int
	CreatedAt time.Time
}

// ItemHistoryEntry is an item's best location in one run. Ranked is false
// when the item dropped somewhere but no node passed that run's threshold.
type ItemHistoryEntry struct {
	Run    Run
	Ranked bool
	Best   efficiency.LocationEfficiency
}

const runColumns = "id, digest, policy, threshold, items, nodes, unranked, created_at"

// SaveRun archives a result computed from the drop data with the given
// digest and returns the new run id.
func (d *Database) SaveRun(digest, policy string, res *efficiency.Result) (int64, error) {
	run := Run{
		Digest:    digest,
		Policy:    policy,
		Threshold: res.Threshold,
		Items:     len(res.Locations),
		Nodes:     len(res.Efficiency),
		Unranked:  len(res.Unranked),
		CreatedAt: time.Now().UTC(),
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := "INSERT INTO runs (digest, policy, threshold, items, nodes, unranked, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	args := []any{run.Digest, run.Policy, run.Threshold, run.Items, run.Nodes, run.Unranked, run.CreatedAt}

	if d.dialect.SupportsLastInsertID() {
		result, err := tx.Exec(d.qb.Build(query), args...)
		if err != nil {
			return 0, fmt.Errorf("failed to create run: %w", err)
		}
		if run.ID, err = result.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to get run ID: %w", err)
		}
	} else {
		if err := tx.QueryRow(d.qb.BuildWithReturning(query, "id"), args...).Scan(&run.ID); err != nil {
			return 0, fmt.Errorf("failed to create run: %w", err)
		}
	}

	if err := d.insertResult(tx, run.ID, res); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	return run.ID, nil
}

// ImportRun stores a run under its existing id, for copying between archives.
// It returns ErrRunExists when the id is already taken.
func (d *Database) ImportRun(run Run, res *efficiency.Result) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(d.qb.Build(
		"INSERT INTO runs ("+runColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		run.ID, run.Digest, run.Policy, run.Threshold, run.Items, run.Nodes, run.Unranked, run.CreatedAt,
	)
	if err != nil {
		if d.dialect.IsDuplicateKeyError(err) {
			return ErrRunExists
		}
		return fmt.Errorf("failed to import run %d: %w", run.ID, err)
	}

	if err := d.insertResult(tx, run.ID, res); err != nil {
		return err
	}
	if stmt := d.dialect.ResetSequence("runs", "id"); stmt != "" {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to reset run id sequence: %w", err)
		}
	}

	return tx.Commit()
}

// insertResult writes the detail tables of a run. Rows are written in sorted
// key order so two archives of the same result are identical.
func (d *Database) insertResult(tx *sql.Tx, runID int64, res *efficiency.Result) error {
	locStmt, err := tx.Prepare(d.qb.Build("INSERT INTO run_locations (run_id, item, node, apd) VALUES (?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare location insert: %w", err)
	}
	defer locStmt.Close()

	for _, item := range sortedKeys(res.Locations) {
		locs := res.Locations[item]
		for _, node := range sortedKeys(locs) {
			if _, err := locStmt.Exec(runID, item, node, locs[node]); err != nil {
				return fmt.Errorf("failed to save location %s for %s: %w", node, item, err)
			}
		}
	}

	for _, item := range sortedKeys(res.BestAPD) {
		best := res.BestAPD[item]
		_, err := tx.Exec(d.qb.Build("INSERT INTO run_best_apd (run_id, item, apd, node) VALUES (?, ?, ?, ?)"),
			runID, item, best.APD, best.Node)
		if err != nil {
			return fmt.Errorf("failed to save best APD for %s: %w", item, err)
		}
	}

	effStmt, err := tx.Prepare(d.qb.Build("INSERT INTO run_efficiency (run_id, node, efficiency) VALUES (?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare efficiency insert: %w", err)
	}
	defer effStmt.Close()

	for _, node := range sortedKeys(res.Efficiency) {
		if _, err := effStmt.Exec(runID, node, res.Efficiency[node]); err != nil {
			return fmt.Errorf("failed to save efficiency for %s: %w", node, err)
		}
	}

	rankStmt, err := tx.Prepare(d.qb.Build(
		"INSERT INTO run_rankings (run_id, item, position, node, efficiency, apd) VALUES (?, ?, ?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare ranking insert: %w", err)
	}
	defer rankStmt.Close()

	for _, item := range sortedKeys(res.RankedLocations) {
		for pos, entry := range res.RankedLocations[item] {
			if _, err := rankStmt.Exec(runID, item, pos, entry.Node, entry.Efficiency, entry.APD); err != nil {
				return fmt.Errorf("failed to save ranking for %s: %w", item, err)
			}
		}
	}

	return nil
}

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.Digest, &run.Policy, &run.Threshold,
		&run.Items, &run.Nodes, &run.Unranked, &run.CreatedAt)
	return run, err
}

// GetRun returns the summary of a run.
func (d *Database) GetRun(id int64) (*Run, error) {
	row := d.db.QueryRow(d.qb.Build("SELECT "+runColumns+" FROM runs WHERE id = ?"), id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return &run, nil
}

// GetLatestRun returns the most recently archived run.
func (d *Database) GetLatestRun() (*Run, error) {
	row := d.db.QueryRow("SELECT " + runColumns + " FROM runs ORDER BY id DESC LIMIT 1")
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return &run, nil
}

// ListRuns returns every run, oldest first.
func (d *Database) ListRuns() ([]Run, error) {
	rows, err := d.db.Query("SELECT " + runColumns + " FROM runs ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRanking returns the ranked locations of item in a run, best first. An
// unranked or unknown item gives an empty list.
func (d *Database) GetRanking(runID int64, item string) ([]efficiency.LocationEfficiency, error) {
	rows, err := d.db.Query(d.qb.Build(`
		SELECT node, efficiency, apd FROM run_rankings
		WHERE run_id = ? AND item = ?
		ORDER BY position ASC
	`), runID, item)
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking for %s: %w", item, err)
	}
	defer rows.Close()

	var ranked []efficiency.LocationEfficiency
	for rows.Next() {
		var e efficiency.LocationEfficiency
		if err := rows.Scan(&e.Node, &e.Efficiency, &e.APD); err != nil {
			return nil, err
		}
		ranked = append(ranked, e)
	}
	return ranked, rows.Err()
}

// GetItemHistory returns the best location of item in every run that saw
// the item, oldest first.
func (d *Database) GetItemHistory(item string) ([]ItemHistoryEntry, error) {
	rows, err := d.db.Query(d.qb.Build(`
		SELECT r.id, r.digest, r.policy, r.threshold, r.items, r.nodes, r.unranked, r.created_at,
			k.node, k.efficiency, k.apd
		FROM runs r
		JOIN run_best_apd b ON b.run_id = r.id AND b.item = ?
		LEFT JOIN run_rankings k ON k.run_id = r.id AND k.item = b.item AND k.position = 0
		ORDER BY r.id ASC
	`), item)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", item, err)
	}
	defer rows.Close()

	var history []ItemHistoryEntry
	for rows.Next() {
		var (
			entry ItemHistoryEntry
			node  sql.NullString
			eff   sql.NullFloat64
			apd   sql.NullFloat64
		)
		err := rows.Scan(&entry.Run.ID, &entry.Run.Digest, &entry.Run.Policy, &entry.Run.Threshold,
			&entry.Run.Items, &entry.Run.Nodes, &entry.Run.Unranked, &entry.Run.CreatedAt,
			&node, &eff, &apd)
		if err != nil {
			return nil, err
		}
		if node.Valid {
			entry.Ranked = true
			entry.Best = efficiency.LocationEfficiency{Node: node.String, Efficiency: eff.Float64, APD: apd.Float64}
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// LoadResult rebuilds the full result of a run.
func (d *Database) LoadResult(runID int64) (*efficiency.Result, error) {
	run, err := d.GetRun(runID)
	if err != nil {
		return nil, err
	}

	res := &efficiency.Result{
		Threshold:       run.Threshold,
		BestAPD:         make(map[string]efficiency.BestAPD),
		Locations:       make(map[string]map[string]float64),
		Efficiency:      make(map[string]float64),
		BestLocation:    make(map[string]efficiency.LocationEfficiency),
		RankedLocations: make(map[string][]efficiency.LocationEfficiency),
	}

	err = d.eachRow("SELECT item, node, apd FROM run_locations WHERE run_id = ?", runID, func(rows *sql.Rows) error {
		var item, node string
		var apd float64
		if err := rows.Scan(&item, &node, &apd); err != nil {
			return err
		}
		if res.Locations[item] == nil {
			res.Locations[item] = make(map[string]float64)
		}
		res.Locations[item][node] = apd
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = d.eachRow("SELECT item, apd, node FROM run_best_apd WHERE run_id = ?", runID, func(rows *sql.Rows) error {
		var item string
		var best efficiency.BestAPD
		if err := rows.Scan(&item, &best.APD, &best.Node); err != nil {
			return err
		}
		res.BestAPD[item] = best
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = d.eachRow("SELECT node, efficiency FROM run_efficiency WHERE run_id = ?", runID, func(rows *sql.Rows) error {
		var node string
		var eff float64
		if err := rows.Scan(&node, &eff); err != nil {
			return err
		}
		res.Efficiency[node] = eff
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = d.eachRow("SELECT item, node, efficiency, apd FROM run_rankings WHERE run_id = ? ORDER BY item, position",
		runID, func(rows *sql.Rows) error {
			var item string
			var e efficiency.LocationEfficiency
			if err := rows.Scan(&item, &e.Node, &e.Efficiency, &e.APD); err != nil {
				return err
			}
			res.RankedLocations[item] = append(res.RankedLocations[item], e)
			return nil
		})
	if err != nil {
		return nil, err
	}

	for item, ranked := range res.RankedLocations {
		res.BestLocation[item] = ranked[0]
	}
	for _, item := range sortedKeys(res.Locations) {
		if _, ok := res.RankedLocations[item]; !ok {
			res.Unranked = append(res.Unranked, item)
		}
	}

	return res, nil
}

// DeleteRun removes a run and its detail rows.
func (d *Database) DeleteRun(id int64) error {
	result, err := d.db.Exec(d.qb.Build("DELETE FROM runs WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete run %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (d *Database) eachRow(query string, runID int64, fn func(*sql.Rows) error) error {
	rows, err := d.db.Query(d.qb.Build(query), runID)
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return fmt.Errorf("failed to load run %d: %w", runID, err)
		}
	}
	return rows.Err()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
