package database

import (
	"database/sql"
	"time"
)

const runColumns = `run_id, step_id, job_id, status, filesystem, started_at, finished_at,
	       dropped, missing, pruned, output, error_message`

// GetRecentRuns returns the N most recent runs
func (d *HistoryDB) GetRecentRuns(limit int) ([]RunRecord, error) {
	query := `
	SELECT ` + runColumns + `
	FROM runs
	ORDER BY finished_at DESC
	LIMIT ?
	`

	return d.queryRuns(query, limit)
}

// GetRunsByJob returns every run recorded for a job, newest first
func (d *HistoryDB) GetRunsByJob(jobID string) ([]RunRecord, error) {
	query := `
	SELECT ` + runColumns + `
	FROM runs
	WHERE job_id = ?
	ORDER BY finished_at DESC
	`

	return d.queryRuns(query, jobID)
}

// GetRunsByStatus returns runs filtered by terminal status
func (d *HistoryDB) GetRunsByStatus(status string, limit int) ([]RunRecord, error) {
	query := `
	SELECT ` + runColumns + `
	FROM runs
	WHERE status = ?
	ORDER BY finished_at DESC
	LIMIT ?
	`

	return d.queryRuns(query, status, limit)
}

// GetRun returns one run and its trail entries in order. A missing run
// yields sql.ErrNoRows.
func (d *HistoryDB) GetRun(runID string) (*RunRecord, []EntryRecord, error) {
	runs, err := d.queryRuns(`
	SELECT `+runColumns+`
	FROM runs
	WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, nil, err
	}
	if len(runs) == 0 {
		return nil, nil, sql.ErrNoRows
	}

	entries, err := d.queryEntries(`
	SELECT e.id, e.run_id, r.job_id, e.seq, e.action, e.path, e.message, r.finished_at
	FROM entries e JOIN runs r ON r.run_id = e.run_id
	WHERE e.run_id = ?
	ORDER BY e.seq
	`, runID)
	if err != nil {
		return nil, nil, err
	}

	return &runs[0], entries, nil
}

// GetEntriesByAction returns the N most recent entries with the given action
func (d *HistoryDB) GetEntriesByAction(action string, limit int) ([]EntryRecord, error) {
	query := `
	SELECT e.id, e.run_id, r.job_id, e.seq, e.action, e.path, e.message, r.finished_at
	FROM entries e JOIN runs r ON r.run_id = e.run_id
	WHERE e.action = ?
	ORDER BY r.finished_at DESC, e.seq
	LIMIT ?
	`

	return d.queryEntries(query, action, limit)
}

// GetEntriesByPath returns entries matching a LIKE path pattern
func (d *HistoryDB) GetEntriesByPath(pathPattern string) ([]EntryRecord, error) {
	query := `
	SELECT e.id, e.run_id, r.job_id, e.seq, e.action, e.path, e.message, r.finished_at
	FROM entries e JOIN runs r ON r.run_id = e.run_id
	WHERE e.path LIKE ?
	ORDER BY r.finished_at DESC, e.seq
	`

	return d.queryEntries(query, pathPattern)
}

// RunStats holds aggregated statistics
type RunStats struct {
	TotalRuns    int
	Succeeded    int
	Errored      int
	PathsDropped int
	PathsMissing int
	JobDirsFreed int
	StartDate    time.Time
	EndDate      time.Time
}

// GetRunStats returns statistics for runs finished in the last days
func (d *HistoryDB) GetRunStats(days int) (*RunStats, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	stats := &RunStats{
		StartDate: since,
		EndDate:   now,
	}

	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'SUCCEEDED' THEN 1 END),
			COUNT(CASE WHEN status = 'ERRORED' THEN 1 END),
			COALESCE(SUM(dropped), 0),
			COALESCE(SUM(missing), 0),
			COALESCE(SUM(pruned), 0)
		FROM runs
		WHERE finished_at >= ?
	`, since).Scan(
		&stats.TotalRuns, &stats.Succeeded, &stats.Errored,
		&stats.PathsDropped, &stats.PathsMissing, &stats.JobDirsFreed,
	)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// DeleteOldRuns removes runs (and their entries) older than specified days
func (d *HistoryDB) DeleteOldRuns(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`
		DELETE FROM runs WHERE finished_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (d *HistoryDB) queryRuns(query string, args ...interface{}) ([]RunRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var fsURI, output, errMsg sql.NullString

		err := rows.Scan(
			&r.RunID, &r.StepID, &r.JobID, &r.Status, &fsURI,
			&r.StartedAt, &r.FinishedAt,
			&r.Dropped, &r.Missing, &r.Pruned,
			&output, &errMsg,
		)
		if err != nil {
			return nil, err
		}

		r.FileSystem = fsURI.String
		r.Output = output.String
		r.ErrorMessage = errMsg.String

		records = append(records, r)
	}

	return records, rows.Err()
}

func (d *HistoryDB) queryEntries(query string, args ...interface{}) ([]EntryRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EntryRecord
	for rows.Next() {
		var e EntryRecord
		var path, message sql.NullString

		if err := rows.Scan(&e.ID, &e.RunID, &e.JobID, &e.Seq, &e.Action, &path, &message, &e.FinishedAt); err != nil {
			return nil, err
		}
		e.Path = path.String
		e.Message = message.String

		records = append(records, e)
	}

	return records, rows.Err()
}
