package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wildsight/antler/pkg/backfill"
	"github.com/wildsight/antler/pkg/clientsets"
	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/database"
	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/imagestore"
	"github.com/wildsight/antler/pkg/inference"
	"github.com/wildsight/antler/pkg/queue"
	"github.com/wildsight/antler/pkg/sql"
)

const availableActions = "backfill, reassign, re-embed, revert-stale, compact-profiles, requeue-dead, stats"

func main() {
	action := flag.String("action", "stats", "Action to perform: "+availableActions)
	configPath := flag.String("config", "", "Path to the service config (defaults to $CONFIG_PATH, then config.yaml)")
	queueName := flag.String("queue", "", "Queue for requeue-dead: detect or reid")
	server := flag.String("server", "", "Base URL of a running service; stats and requeue-dead go through its API instead of the database")
	dryRun := flag.Bool("dry-run", false, "Dry run mode (show what would be done)")
	autoYes := flag.Bool("yes", false, "Automatically answer yes to confirmation prompts")

	flag.Parse()

	fmt.Println("Antler Admin Tool")
	fmt.Println("=================")
	fmt.Println()

	// The scan actions check the context once per batch, so an interrupt
	// lands between pages instead of mid-write.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *server != "" {
		runAgainstServer(ctx, *server, *action, *queueName)
		return
	}

	if *configPath != "" {
		os.Setenv("CONFIG_PATH", *configPath)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		fmt.Println("\nTip: point --config (or $CONFIG_PATH) at the service's config.yaml")
		return
	}

	db, err := sql.InitDefault(cfg.Database)
	if err != nil {
		fmt.Printf("Database connection failed: %v\n", err)
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		fmt.Printf("Failed to get sql.DB: %v\n", err)
		return
	}
	defer sqlDB.Close()

	facade := database.GetFacade()
	q := queue.NewDBQueue(facade.GetQueueTask(), cfg.Queue, cfg.Pipeline)

	switch *action {
	case "stats":
		showStats(ctx, facade, q)
		return
	case "requeue-dead":
		runRequeueDead(ctx, q, *queueName)
		return
	}

	// Everything below scans through the runner. Registries init lazily,
	// so actions that never embed do not load a model.
	source, err := imagestore.NewSource(cfg.Storage)
	if err != nil {
		fmt.Printf("Failed to open image storage: %v\n", err)
		return
	}
	registry, err := inference.NewModelRegistry(cfg.Inference, cfg.Pipeline)
	if err != nil {
		fmt.Printf("Failed to build model registry: %v\n", err)
		return
	}
	defer registry.Close()

	runner := backfill.NewRunner(facade, q, backfill.NewTracker(), source, registry, cfg.Pipeline, cfg.Backfill)

	switch *action {
	case "backfill":
		fmt.Println("Scanning pending images without a live detect task...")
		report(runner.BackfillPending(ctx, *dryRun))

	case "reassign":
		fmt.Println("Scanning eligible unassigned detections...")
		report(runner.ReassignUnassigned(ctx, *dryRun))

	case "revert-stale":
		fmt.Println("Scanning processing images without a live task...")
		report(runner.RevertStaleProcessing(ctx, *dryRun))

	case "re-embed":
		// Fail on a missing model before touching the first profile.
		if err := registry.Warm(); err != nil {
			fmt.Printf("Model warm-up failed: %v\n", err)
			return
		}
		fmt.Println("Recomputing profile embeddings from best sightings...")
		report(runner.ReEmbed(ctx, *dryRun))

	case "compact-profiles":
		if !*dryRun && !confirm(*autoYes, "Delete every profile without a referencing detection? (yes/no): ") {
			fmt.Println("Compaction cancelled")
			return
		}
		fmt.Println("Scanning profiles for orphans...")
		report(runner.CompactProfiles(ctx, *dryRun))

	default:
		fmt.Printf("Unknown action: %s\n", *action)
		fmt.Println("\nAvailable actions: " + availableActions)
	}
}

// runAgainstServer serves the two actions a live service exposes over its
// API. The scan actions stay database-only: they hold row locks and load
// models, which does not belong behind an HTTP timeout.
func runAgainstServer(ctx context.Context, address, action, queueName string) {
	client := clientsets.NewAntlerClient(address)

	switch action {
	case "stats":
		stats, err := client.GetQueueStats(ctx)
		if err != nil {
			fmt.Printf("Failed to get queue stats from %s: %v\n", address, err)
			return
		}
		fmt.Println("=== Queue Depths ===")
		for _, name := range []string{model.QueueDetect, model.QueueReid} {
			fmt.Printf("%s:\n", name)
			printTaskCounts(stats[name])
		}

	case "requeue-dead":
		if !isPipelineQueue(queueName) {
			fmt.Printf("Unknown queue %q, use --queue detect or --queue reid\n", queueName)
			return
		}
		n, err := client.RequeueDead(ctx, queueName)
		if err != nil {
			fmt.Printf("Failed to requeue dead tasks of %s: %v\n", queueName, err)
			return
		}
		fmt.Printf("Requeued %d dead tasks of queue %s\n", n, queueName)

	default:
		fmt.Printf("Action %s needs direct database access, drop --server\n", action)
	}
}

func runRequeueDead(ctx context.Context, q queue.Queue, queueName string) {
	if !isPipelineQueue(queueName) {
		fmt.Printf("Unknown queue %q, use --queue detect or --queue reid\n", queueName)
		return
	}
	n, err := q.RequeueDead(ctx, queueName)
	if err != nil {
		fmt.Printf("Failed to requeue dead tasks of %s: %v\n", queueName, err)
		return
	}
	fmt.Printf("Requeued %d dead tasks of queue %s\n", n, queueName)
}

func showStats(ctx context.Context, facade database.FacadeInterface, q queue.Queue) {
	fmt.Println("=== Queue Depths ===")
	for _, name := range []string{model.QueueDetect, model.QueueReid} {
		counts, err := q.Stats(ctx, name)
		if err != nil {
			fmt.Printf("%s: <error: %v>\n", name, err)
			continue
		}
		fmt.Printf("%s:\n", name)
		printTaskCounts(counts)
	}

	imageCounts, err := facade.GetImage().CountByStatus(ctx)
	if err != nil {
		fmt.Printf("\nImage status: <error: %v>\n", err)
	} else {
		fmt.Println("\n=== Image Status ===")
		statuses := []string{
			model.ImageStatusPending,
			model.ImageStatusProcessing,
			model.ImageStatusCompleted,
			model.ImageStatusFailed,
		}
		for _, status := range statuses {
			fmt.Printf("  %-12s %d\n", status, imageCounts[status])
		}
	}

	profiles, err := facade.GetDeer().Count(ctx)
	if err != nil {
		fmt.Printf("\nProfiles: <error: %v>\n", err)
		return
	}
	fmt.Printf("\nProfiles: %d\n", profiles)
}

func printTaskCounts(counts map[string]int64) {
	statuses := []string{
		model.TaskStatusPending,
		model.TaskStatusProcessing,
		model.TaskStatusCompleted,
		model.TaskStatusDead,
	}
	for _, status := range statuses {
		fmt.Printf("  %-12s %d\n", status, counts[status])
	}
}

// report prints the closed job record. A run that failed partway still
// carries the counters it reached.
func report(job *backfill.Job, err error) {
	if err != nil {
		fmt.Printf("Action failed: %v\n", err)
	}
	if job == nil {
		return
	}
	fmt.Println("\n=== Run Summary ===")
	fmt.Printf("Job:       %s\n", job.ID)
	fmt.Printf("Status:    %s\n", job.Status)
	if job.DryRun {
		fmt.Println("Mode:      dry run (no changes made)")
	}
	fmt.Printf("Scanned:   %d\n", job.Total)
	fmt.Printf("Processed: %d\n", job.Processed)
	fmt.Printf("Skipped:   %d\n", job.Skipped)
	fmt.Printf("Failed:    %d\n", job.Failed)
	if job.ErrorMessage != "" {
		fmt.Printf("Error:     %s\n", job.ErrorMessage)
	}
}

func confirm(autoYes bool, prompt string) bool {
	if autoYes {
		fmt.Println("Auto-confirmed (--yes flag)")
		return true
	}
	fmt.Print(prompt)
	var answer string
	fmt.Scanln(&answer)
	return answer == "yes"
}

func isPipelineQueue(name string) bool {
	return name == model.QueueDetect || name == model.QueueReid
}
