// Package main arXiv 元数据快照导入工具
//
// 从 Kaggle arXiv 快照（JSONL）批量构建论文向量索引：
//
//	needle-indexer -file arxiv-metadata-oai-snapshot.json -offset 0 -max-rows 100000
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"needle-api/internal/application/ingest"
	"needle-api/internal/config"
	einoobs "needle-api/internal/observability/eino"
	"needle-api/internal/wire"
	"needle-api/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	var (
		filePath = flag.String("file", "", "path to the arXiv metadata JSONL snapshot")
		offset   = flag.Int("offset", 0, "number of snapshot lines to skip")
		maxRows  = flag.Int("max-rows", 0, "maximum number of records to index (0 = no limit)")
	)
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: needle-indexer -file <snapshot.json> [-offset N] [-max-rows N]")
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	// Ctrl-C 后停止导入，已写入的批次保留
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	einoobs.Init()

	indexer, cleanup, err := wire.InitializeIndexer(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize indexer", err)
	}
	defer cleanup()

	f, err := os.Open(*filePath)
	if err != nil {
		logger.Fatal(ctx, "failed to open snapshot file", err, "file", *filePath)
	}
	defer f.Close()

	log := logger.FromContext(ctx)
	log.Info("snapshot import starting", "file", *filePath, "offset", *offset, "max_rows", *maxRows)

	report, err := indexer.Run(ctx, f, ingest.Options{Offset: *offset, MaxRows: *maxRows})
	if report != nil {
		log.Info("snapshot import finished", "indexed", report.Indexed, "skipped", report.Skipped)
		fmt.Printf("indexed %d records, skipped %d\n", report.Indexed, report.Skipped)
	}
	if err != nil {
		logger.Fatal(ctx, "snapshot import failed", err)
	}
}
