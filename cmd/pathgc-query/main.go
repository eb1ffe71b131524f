package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"pathgc/internal/database"
	"pathgc/internal/exitcodes"
)

func main() {
	// Parse command-line flags
	dbPath := flag.String("db", "/var/lib/pathgc/history.db", "Path to run history database")
	recent := flag.Int("recent", 0, "Show N most recent runs")
	stats := flag.Bool("stats", false, "Show run statistics")
	run := flag.String("run", "", "Show one run and its trail")
	job := flag.String("job", "", "Show runs of a job")
	status := flag.String("status", "", "Filter runs by status (SUCCEEDED, ERRORED)")
	action := flag.String("action", "", "Show entries by action (DROPPED, NOT_EXISTS, PRUNED, ERROR)")
	pathPattern := flag.String("path", "", "Show entries by path pattern (SQL LIKE syntax)")
	limit := flag.Int("limit", 50, "Maximum rows for -status and -action")
	days := flag.Int("days", 30, "Number of days for statistics (default: 30)")
	prune := flag.Int("prune", 0, "Delete runs older than N days")
	jsonOutput := flag.Bool("json", false, "Output in JSON format")
	flag.Parse()

	db, err := openHistory(*dbPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to open database %s: %v", *dbPath, err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("ERROR: Failed to close database: %v", err)
		}
	}()

	switch {
	case *stats:
		showStats(db, *days, *jsonOutput)
	case *recent > 0:
		records, err := db.GetRecentRuns(*recent)
		showRuns(records, err, *jsonOutput, "")
	case *run != "":
		showRun(db, *run, *jsonOutput)
	case *job != "":
		records, err := db.GetRunsByJob(*job)
		showRuns(records, err, *jsonOutput, "Runs of job: "+*job)
	case *status != "":
		records, err := db.GetRunsByStatus(*status, *limit)
		showRuns(records, err, *jsonOutput, "Runs with status: "+*status)
	case *action != "":
		records, err := db.GetEntriesByAction(*action, *limit)
		showEntries(records, err, *jsonOutput, "Entries with action: "+*action)
	case *pathPattern != "":
		records, err := db.GetEntriesByPath(*pathPattern)
		showEntries(records, err, *jsonOutput, "Entries matching path pattern: "+*pathPattern)
	case *prune > 0:
		n, err := db.DeleteOldRuns(*prune)
		if err != nil {
			log.Fatalf("ERROR: Failed to prune history: %v", err)
		}
		if err := db.Vacuum(); err != nil {
			log.Printf("ERROR: Failed to vacuum database: %v", err)
		}
		fmt.Printf("Deleted %d runs older than %d days\n", n, *prune)
	default:
		flag.Usage()
		fmt.Println("\nExamples:")
		fmt.Println("  pathgc-query --recent 10              # Show 10 most recent runs")
		fmt.Println("  pathgc-query --stats                  # Show run statistics")
		fmt.Println("  pathgc-query --run <run-id>           # Show a run's trail")
		fmt.Println("  pathgc-query --job 0f3a-...           # Show runs of a job")
		fmt.Println("  pathgc-query --action PRUNED          # Show pruned job directories")
		fmt.Println("  pathgc-query --path '/kylin/%/hfiles' # Show entries for matching paths")
		fmt.Println("  pathgc-query --prune 90               # Delete runs older than 90 days")
		os.Exit(exitcodes.InvalidConfig)
	}
}

func showStats(db *database.HistoryDB, days int, jsonOutput bool) {
	stats, err := db.GetRunStats(days)
	if err != nil {
		log.Fatalf("ERROR: Failed to get statistics: %v", err)
	}

	if jsonOutput {
		printJSON(stats)
		return
	}

	fmt.Printf("Path GC Statistics (Last %d days)\n", days)
	fmt.Printf("Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Printf("Total Runs:       %d\n", stats.TotalRuns)
	fmt.Printf("Succeeded:        %d\n", stats.Succeeded)
	fmt.Printf("Errored:          %d\n", stats.Errored)
	fmt.Printf("Paths Dropped:    %d\n", stats.PathsDropped)
	fmt.Printf("Paths Missing:    %d\n", stats.PathsMissing)
	fmt.Printf("Job Dirs Pruned:  %d\n", stats.JobDirsFreed)

	dbStats, err := db.GetDatabaseStats()
	if err != nil {
		log.Printf("ERROR: Failed to get database statistics: %v", err)
		return
	}
	fmt.Printf("\nDatabase:         %d runs, %d entries, %s\n",
		dbStats["total_runs"], dbStats["total_entries"], formatBytes(dbStats["database_size_bytes"].(int64)))
}

func showRun(db *database.HistoryDB, runID string, jsonOutput bool) {
	run, entries, err := db.GetRun(runID)
	if errors.Is(err, sql.ErrNoRows) {
		log.Fatalf("ERROR: Run %s not found", runID)
	}
	if err != nil {
		log.Fatalf("ERROR: Failed to get run: %v", err)
	}

	if jsonOutput {
		printJSON(map[string]any{"run": run, "entries": entries})
		return
	}

	printRuns([]database.RunRecord{*run})
	fmt.Println()
	printEntries(entries)
}

func showRuns(records []database.RunRecord, err error, jsonOutput bool, title string) {
	if err != nil {
		log.Fatalf("ERROR: Failed to query runs: %v", err)
	}

	if jsonOutput {
		printJSON(records)
		return
	}

	if title != "" {
		fmt.Printf("%s\n\n", title)
	}
	printRuns(records)
}

func showEntries(records []database.EntryRecord, err error, jsonOutput bool, title string) {
	if err != nil {
		log.Fatalf("ERROR: Failed to query entries: %v", err)
	}

	if jsonOutput {
		printJSON(records)
		return
	}

	fmt.Printf("%s\n\n", title)
	printEntries(records)
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func printRuns(records []database.RunRecord) {
	if len(records) == 0 {
		fmt.Println("No records found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Run\tFinished\tStep\tJob\tStatus\tDropped\tMissing\tPruned\tDuration")
	_, _ = fmt.Fprintln(w, "---\t--------\t----\t---\t------\t-------\t-------\t------\t--------")

	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID, r.FinishedAt.Format("2006-01-02 15:04:05"), r.StepID, r.JobID, r.Status,
			r.Dropped, r.Missing, r.Pruned, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	_ = w.Flush()
}

func printEntries(records []database.EntryRecord) {
	if len(records) == 0 {
		fmt.Println("No records found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Run\tFinished\tJob\t#\tAction\tMessage")
	_, _ = fmt.Fprintln(w, "---\t--------\t---\t-\t------\t-------")

	for _, e := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.RunID, e.FinishedAt.Format("2006-01-02 15:04:05"), e.JobID, e.Seq, e.Action, e.Message)
	}
	_ = w.Flush()
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// openHistory opens an existing history database. NewHistoryDB would
// create a missing one, which would hide a mistyped -db.
func openHistory(path string) (*database.HistoryDB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return database.NewHistoryDB(path)
}
