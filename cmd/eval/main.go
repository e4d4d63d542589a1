// Command eval runs a labeled question set against a set of documents
// and prints a scored report.
//
//	eval -cases cases.json -out report.json doc1.txt doc2.pdf
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/supai/backend/internal/budget"
	"github.com/supai/backend/internal/classify"
	"github.com/supai/backend/internal/diagnostic"
	"github.com/supai/backend/internal/evaluation"
	"github.com/supai/backend/internal/pipeline"
	"github.com/supai/backend/internal/provider/openai"
	"github.com/supai/backend/internal/rewrite"
	"github.com/supai/backend/pkg/config"
	appLogger "github.com/supai/backend/pkg/logger"
)

func main() {
	casesPath := flag.String("cases", "", "path to the JSON eval cases file")
	outPath := flag.String("out", "", "optional path for the full JSON report")
	flag.Parse()

	if *casesPath == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: eval -cases cases.json [-out report.json] document...")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	store, err := diagnostic.NewStore(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to open diagnostic store", zap.Error(err))
	}
	defer store.Close()

	llmClient := openai.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.TimeoutSec,
	)

	pipe := pipeline.New(
		llmClient,
		llmClient,
		rewrite.New(llmClient, nil),
		classify.NewJudge(llmClient),
		store,
		budget.Rates{
			EmbeddingPerToken:        cfg.LLM.EmbeddingCostPerToken,
			CompletionInputPerToken:  cfg.LLM.CompletionInputCostPerToken,
			CompletionOutputPerToken: cfg.LLM.CompletionOutputCostPerToken,
		},
		classify.Thresholds{
			Confident: cfg.Retrieval.ConfidentThreshold,
			Uncertain: cfg.Retrieval.UncertainThreshold,
		},
		pipeline.Limits{
			MaxSources:     cfg.Limits.MaxSources,
			MaxFileSizeMB:  cfg.Limits.MaxFileSizeMB,
			MaxChunks:      cfg.Limits.MaxChunks,
			TopK:           cfg.Limits.TopK,
			EmbedBatchSize: cfg.Limits.EmbedBatchSize,
		},
	)

	manager := pipeline.NewManager(cfg.Limits.SessionBudgetUSD)
	s := manager.Create()

	ctx := context.Background()

	var inputs []pipeline.IngestInput
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			appLogger.Fatal("Failed to read document", zap.String("path", path), zap.Error(err))
		}
		inputs = append(inputs, pipeline.IngestInput{Name: filepath.Base(path), Data: data})
	}

	result, err := pipe.Ingest(ctx, s, inputs, nil)
	if err != nil {
		appLogger.Fatal("Ingestion failed", zap.Error(err))
	}
	appLogger.Info("Documents loaded",
		zap.Int("chunks", result.ChunksIndexed),
		zap.Float64("cost", result.Cost),
	)

	casesData, err := os.ReadFile(*casesPath)
	if err != nil {
		appLogger.Fatal("Failed to read cases file", zap.Error(err))
	}
	cases, err := evaluation.LoadCases(casesData)
	if err != nil {
		appLogger.Fatal("Failed to parse cases file", zap.Error(err))
	}

	runner := evaluation.NewRunner(pipe, llmClient)
	report, err := runner.Run(ctx, s, cases)
	if err != nil {
		appLogger.Fatal("Evaluation run failed", zap.Error(err))
	}

	fmt.Print(evaluation.FormatReport(report))

	if *outPath != "" {
		data, err := evaluation.MarshalReport(report)
		if err != nil {
			appLogger.Fatal("Failed to marshal report", zap.Error(err))
		}
		if err := os.WriteFile(*outPath, data, 0o644); err != nil {
			appLogger.Fatal("Failed to write report", zap.Error(err))
		}
		appLogger.Info("Report written", zap.String("path", *outPath))
	}
}
