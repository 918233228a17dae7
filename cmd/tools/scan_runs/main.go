package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/yabodle/sitescan/internal/db"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Run", "Status", "Fetched", "New", "Updated", "Unchanged", "Skipped", "Failed Sources", "Duration", "Started At"})

	for _, run := range runs {
		totals := run.Totals()

		failed := 0
		for _, src := range run.Sources {
			if src.Error != "" {
				failed++
			}
		}

		duration := "Running..."
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
		}

		t.AppendRow(table.Row{
			run.ID.String()[:8], run.Status,
			totals.Fetched, totals.New, totals.Updated, totals.Unchanged, totals.Skipped,
			failed, duration, run.StartedAt.Format("Jan 02 15:04:05"),
		})
	}
	t.Render()
}
