// Command backfill replays the content store into the document event
// topic. It is the disaster-recovery path when the index topic must be
// re-seeded: every stored document is published as a Created event,
// which the idempotent index writer applies safely over existing state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/deskwise/kbsearch/internal/kb"
	"github.com/deskwise/kbsearch/internal/store"
	"github.com/deskwise/kbsearch/pkg/config"
	"github.com/deskwise/kbsearch/pkg/kafka"
	"github.com/deskwise/kbsearch/pkg/logger"
	"github.com/deskwise/kbsearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	batchSize := flag.Int("batch-size", 100, "events per Kafka batch")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to content store", "error", err)
		os.Exit(1)
	}
	defer pgClient.Close()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
	defer producer.Close()

	ctx := context.Background()
	contentStore := store.NewPostgres(pgClient.DB)
	docs, err := contentStore.ListAllPublished(ctx)
	if err != nil {
		slog.Error("content store scan failed", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	published := 0
	batch := make([]kafka.Event, 0, *batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := producer.PublishBatch(ctx, batch); err != nil {
			return err
		}
		published += len(batch)
		batch = batch[:0]
		return nil
	}
	for _, doc := range docs {
		batch = append(batch, kafka.Event{
			Key: doc.ID,
			Value: kb.DocumentEvent{
				Type:      kb.EventCreated,
				Document:  doc,
				EmittedAt: time.Now().UTC(),
			},
		})
		if len(batch) >= *batchSize {
			if err := flush(); err != nil {
				slog.Error("publishing backfill batch failed", "error", err, "published", published)
				os.Exit(1)
			}
		}
	}
	if err := flush(); err != nil {
		slog.Error("publishing final backfill batch failed", "error", err, "published", published)
		os.Exit(1)
	}

	slog.Info("backfill complete",
		"documents", published,
		"topic", cfg.Kafka.Topics.DocumentEvents,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}
