package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/mkverify/internal/db"
)

func handleRuns(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "mkverify.db", "SQLite database with recorded runs")
	limit := fs.Int("limit", 20, "Maximum number of runs to list (0 for all)")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open database: %v\n", err)
		return exitError
	}
	defer database.Close()

	runs, err := db.NewRunStore(database.DB).List(*limit)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to list runs: %v\n", err)
		return exitError
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tMODEL\tCELLS\tM/K\tSTART\tINVARIANT\tVERDICT\tCREATED")
	for _, r := range runs {
		cells := 1
		for i := 0; i < r.Dims; i++ {
			cells *= r.Divisions
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%d\t%d\t%s\t%s\n",
			r.RunID, r.ModelName, cells, r.Misses, r.Window, r.StartSize, r.InvariantSize, r.Verdict,
			time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(stderr, "Failed to write runs: %v\n", err)
		return exitError
	}
	return exitSafe
}
