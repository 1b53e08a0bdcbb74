// Command processor runs a batch of raw provider payloads through the
// normalization pipeline from the command line. The input file holds a
// JSON array of batch requests; results are written as JSON to the output
// file or stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"marketfuse/internal/config"
	"marketfuse/internal/infrastructure"
	"marketfuse/internal/pipeline"
	"marketfuse/pkg/contracts/domain"
)

func main() {
	inPath := flag.String("in", "", "input file with a JSON array of batch requests")
	outPath := flag.String("out", "", "output file for results (defaults to stdout)")
	showStats := flag.Bool("stats", false, "print pipeline statistics after the run")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: processor -in requests.json [-out results.json] [-stats]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	requests, err := readRequests(*inPath)
	if err != nil {
		logger.Error("failed to read requests", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("processing batch",
		slog.String("input", *inPath),
		slog.Int("items", len(requests)))

	p := pipeline.New(cfg.Engine, logger)
	result := p.BatchNormalize(context.Background(), requests)

	if err := writeResult(*outPath, result); err != nil {
		logger.Error("failed to write results", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("batch complete",
		slog.Int("successful", result.Summary.Successful),
		slog.Int("failed", result.Summary.Failed),
		slog.Duration("duration", result.Summary.Duration))

	if *showStats {
		stats, err := json.MarshalIndent(p.Statistics(), "", "  ")
		if err == nil {
			fmt.Fprintln(os.Stderr, string(stats))
		}
	}

	if result.Summary.Failed > 0 {
		os.Exit(1)
	}
}

func readRequests(path string) ([]domain.BatchRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var requests []domain.BatchRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return requests, nil
}

func writeResult(path string, result domain.BatchResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0644)
}
