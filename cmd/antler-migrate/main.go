package main

import (
	"context"
	"flag"
	"fmt"

	"gorm.io/gorm"

	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/sql"
)

var (
	dbName  = flag.String("dbName", "antler", "The name of the database")
	dbUser  = flag.String("dbUser", "postgres", "The user of the database")
	dbPass  = flag.String("dbPass", "", "The password of the database")
	dbHost  = flag.String("dbHost", "localhost", "The host of the database")
	dbPort  = flag.Int("dbPort", 5432, "The port of the database")
	sslMode = flag.String("sslMode", "disable", "The ssl mode of the database")
)

func main() {
	action := flag.String("action", "stats", "Action to perform: migrate, stats, drop")
	dim := flag.Int("dim", 512, "Embedding dimension for the deer vector columns")
	lists := flag.Int("lists", 100, "ivfflat list count for the embedding indexes")
	autoYes := flag.Bool("yes", false, "Automatically answer yes to confirmation prompts")

	flag.Parse()

	fmt.Println("Antler Schema Migration Tool")
	fmt.Println("============================")
	fmt.Println()
	fmt.Println("Connecting to database...")
	fmt.Printf("   - Host: %s:%d\n", *dbHost, *dbPort)
	fmt.Printf("   - Database: %s\n", *dbName)
	fmt.Printf("   - User: %s\n", *dbUser)
	fmt.Println()

	db, err := sql.InitDefault(sql.DatabaseConfig{
		Host:     *dbHost,
		Port:     *dbPort,
		UserName: *dbUser,
		Password: *dbPass,
		DBName:   *dbName,
		SSLMode:  *sslMode,
	})
	if err != nil {
		fmt.Printf("Database connection failed: %v\n", err)
		fmt.Println("\nTip: Please check if database parameters are correct")
		fmt.Println("   Usage: antler-migrate --action migrate -dbHost=localhost -dbPort=5432 -dbUser=postgres -dbPass=yourpass -dbName=antler")
		return
	}
	fmt.Println("Database connected successfully")
	fmt.Println()

	sqlDB, err := db.DB()
	if err != nil {
		fmt.Printf("Failed to get sql.DB: %v\n", err)
		return
	}
	defer sqlDB.Close()

	ctx := context.Background()

	switch *action {
	case "migrate":
		runMigrate(ctx, db, *dim, *lists)

	case "stats":
		showStats(ctx, db)

	case "drop":
		runDrop(ctx, db, *autoYes)

	default:
		fmt.Printf("Unknown action: %s\n", *action)
		fmt.Println("\nAvailable actions: migrate, stats, drop")
	}
}

type statement struct {
	name string
	sql  string
}

// schemaStatements returns the full schema in dependency order. Every
// statement is idempotent, so re-running migrate against a live database
// is safe; it will not resize vector columns created with another dim.
func schemaStatements(dim, lists int) []statement {
	return []statement{
		{"extension pgvector", `CREATE EXTENSION IF NOT EXISTS vector`},
		{"table location", `
			CREATE TABLE IF NOT EXISTS location (
				id         varchar(64) PRIMARY KEY,
				name       varchar(128) NOT NULL,
				lat        float8,
				lon        float8,
				created_at timestamptz NOT NULL DEFAULT now()
			)`},
		{"index idx_location_name", `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_location_name ON location (name)`},
		{"table image", `
			CREATE TABLE IF NOT EXISTS image (
				id                varchar(64) PRIMARY KEY,
				location_id       varchar(64) NOT NULL REFERENCES location (id),
				path              varchar(1024) NOT NULL,
				filename          varchar(512) NOT NULL,
				"timestamp"       timestamptz NOT NULL,
				processing_status varchar(32) NOT NULL DEFAULT 'pending',
				error_message     varchar(1024),
				created_at        timestamptz NOT NULL DEFAULT now(),
				updated_at        timestamptz NOT NULL DEFAULT now()
			)`},
		{"index uniq_image_location_filename", `
			CREATE UNIQUE INDEX IF NOT EXISTS uniq_image_location_filename ON image (location_id, filename)`},
		{"index idx_image_location_ts", `
			CREATE INDEX IF NOT EXISTS idx_image_location_ts ON image (location_id, "timestamp")`},
		{"index idx_image_processing_status", `
			CREATE INDEX IF NOT EXISTS idx_image_processing_status ON image (processing_status)`},
		{"table deer", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS deer (
				id                varchar(64) PRIMARY KEY,
				sex               varchar(16) NOT NULL DEFAULT 'unknown',
				embedding         vector(%d) NOT NULL,
				embedding_alt     vector(%d),
				embedding_version varchar(64) NOT NULL,
				first_seen        timestamptz NOT NULL,
				last_seen         timestamptz NOT NULL,
				sighting_count    integer NOT NULL DEFAULT 0,
				created_at        timestamptz NOT NULL DEFAULT now(),
				updated_at        timestamptz NOT NULL DEFAULT now()
			)`, dim, dim)},
		{"index idx_deer_sex", `
			CREATE INDEX IF NOT EXISTS idx_deer_sex ON deer (sex)`},
		{"index idx_deer_embedding (ivfflat)", fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS idx_deer_embedding
			ON deer USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, lists)},
		{"index idx_deer_embedding_alt (ivfflat)", fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS idx_deer_embedding_alt
			ON deer USING ivfflat (embedding_alt vector_cosine_ops) WITH (lists = %d)`, lists)},
		{"table detection", `
			CREATE TABLE IF NOT EXISTS detection (
				id             varchar(64) PRIMARY KEY,
				image_id       varchar(64) NOT NULL REFERENCES image (id) ON DELETE CASCADE,
				bbox_x         integer NOT NULL,
				bbox_y         integer NOT NULL,
				bbox_w         integer NOT NULL,
				bbox_h         integer NOT NULL,
				confidence     float8 NOT NULL,
				class          varchar(32) NOT NULL,
				deer_id        varchar(64) REFERENCES deer (id),
				burst_group_id varchar(64),
				is_duplicate   boolean NOT NULL DEFAULT false,
				created_at     timestamptz NOT NULL DEFAULT now()
			)`},
		{"index idx_detection_image_id", `
			CREATE INDEX IF NOT EXISTS idx_detection_image_id ON detection (image_id)`},
		{"index idx_detection_deer_id", `
			CREATE INDEX IF NOT EXISTS idx_detection_deer_id ON detection (deer_id)`},
		{"index idx_detection_burst_group_id", `
			CREATE INDEX IF NOT EXISTS idx_detection_burst_group_id ON detection (burst_group_id)`},
		{"index idx_detection_unassigned (partial)", `
			CREATE INDEX IF NOT EXISTS idx_detection_unassigned
			ON detection (created_at) WHERE deer_id IS NULL AND is_duplicate = false`},
		{"table queue_task", `
			CREATE TABLE IF NOT EXISTS queue_task (
				id            varchar(64) PRIMARY KEY,
				queue         varchar(64) NOT NULL,
				item_id       varchar(64) NOT NULL,
				status        varchar(32) NOT NULL DEFAULT 'pending',
				retry_count   integer NOT NULL DEFAULT 0,
				max_retries   integer NOT NULL DEFAULT 3,
				error_message varchar(1024),
				created_at    timestamptz NOT NULL DEFAULT now(),
				claimed_at    timestamptz,
				completed_at  timestamptz,
				timeout_at    timestamptz,
				visible_at    timestamptz
			)`},
		{"index idx_queue_task_claim", `
			CREATE INDEX IF NOT EXISTS idx_queue_task_claim ON queue_task (queue, status, created_at)`},
		{"index idx_queue_task_timeout", `
			CREATE INDEX IF NOT EXISTS idx_queue_task_timeout ON queue_task (status, timeout_at)`},
	}
}

// runMigrate applies the schema. CREATE EXTENSION requires a role with the
// privilege to install pgvector; everything else is plain DDL.
func runMigrate(ctx context.Context, db *gorm.DB, dim, lists int) {
	fmt.Println("=== Migrate ===")
	fmt.Printf("Embedding dimension: %d\n", dim)
	fmt.Printf("ivfflat lists: %d\n\n", lists)

	for _, stmt := range schemaStatements(dim, lists) {
		if err := db.WithContext(ctx).Exec(stmt.sql).Error; err != nil {
			fmt.Printf("  failed: %s: %v\n", stmt.name, err)
			return
		}
		fmt.Printf("  applied: %s\n", stmt.name)
	}

	var extVersion string
	if err := db.WithContext(ctx).
		Raw(`SELECT extversion FROM pg_extension WHERE extname = 'vector'`).
		Scan(&extVersion).Error; err == nil && extVersion != "" {
		fmt.Printf("\npgvector %s is installed\n", extVersion)
	}
	fmt.Println("Schema is ready")
}

// showStats prints row counts per table plus the status breakdowns the
// operator runbook asks for before and after a backfill.
func showStats(ctx context.Context, db *gorm.DB) {
	fmt.Println("=== Table Statistics ===")

	tables := []string{
		model.TableNameLocation,
		model.TableNameImage,
		model.TableNameDetection,
		model.TableNameDeer,
		model.TableNameQueueTask,
	}
	for _, table := range tables {
		var count int64
		if err := db.WithContext(ctx).Table(table).Count(&count).Error; err != nil {
			fmt.Printf("%-12s <error: %v>\n", table, err)
			continue
		}
		fmt.Printf("%-12s %d rows\n", table, count)
	}

	var statusRows []struct {
		Name  string
		Count int64
	}
	err := db.WithContext(ctx).Raw(`
		SELECT processing_status AS name, COUNT(*) AS count
		FROM image GROUP BY processing_status ORDER BY processing_status`).
		Scan(&statusRows).Error
	if err == nil && len(statusRows) > 0 {
		fmt.Println("\nImage processing status:")
		for _, r := range statusRows {
			fmt.Printf("  %-12s %d\n", r.Name, r.Count)
		}
	}

	var queueRows []struct {
		Name  string
		Count int64
	}
	err = db.WithContext(ctx).Raw(`
		SELECT queue || '/' || status AS name, COUNT(*) AS count
		FROM queue_task GROUP BY queue, status ORDER BY queue, status`).
		Scan(&queueRows).Error
	if err == nil && len(queueRows) > 0 {
		fmt.Println("\nQueue tasks:")
		for _, r := range queueRows {
			fmt.Printf("  %-20s %d\n", r.Name, r.Count)
		}
	}

	fmt.Println()
}

// runDrop removes every pipeline table. Detection goes first so its foreign
// keys never block the rest.
func runDrop(ctx context.Context, db *gorm.DB, autoYes bool) {
	fmt.Println("=== Drop Schema ===")
	fmt.Println("This removes ALL pipeline tables and their data.")
	fmt.Println()

	if !autoYes {
		fmt.Print("Continue with drop? (yes/no): ")
		var confirm string
		fmt.Scanln(&confirm)

		if confirm != "yes" {
			fmt.Println("Drop cancelled")
			return
		}
	} else {
		fmt.Println("Auto-confirmed (--yes flag)")
	}

	tables := []string{
		model.TableNameDetection,
		model.TableNameQueueTask,
		model.TableNameDeer,
		model.TableNameImage,
		model.TableNameLocation,
	}
	for _, table := range tables {
		stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, table)
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			fmt.Printf("  failed: drop %s: %v\n", table, err)
			return
		}
		fmt.Printf("  dropped: %s\n", table)
	}
	fmt.Println("Schema dropped")
}
