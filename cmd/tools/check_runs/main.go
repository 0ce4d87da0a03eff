package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/david/product-scout/internal/db"
	"github.com/jedib0t/go-pretty/v6/table"
)

func main() {
	limit := flag.Int("limit", 10, "Number of runs to show")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	runs, err := db.NewStore(pool).ListRuns(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Run", "Trigger", "Stage", "Status", "Found", "Saved", "Analyzed", "Indexed", "Deindexed", "Failed", "Duration", "Started At"})

	for _, r := range runs {
		duration := "Running..."
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		c := r.Counts
		t.AppendRow(table.Row{
			r.ID.String()[:8], r.Trigger, r.Stage, r.Status,
			c.Discovered, c.Persisted, c.Analyzed, c.Indexed, c.Deindexed, c.Failures(),
			duration, r.StartedAt.Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}
