package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Brownie44l1/fruit-classifier/internal/classify"
	"github.com/Brownie44l1/fruit-classifier/internal/config"
	"github.com/Brownie44l1/fruit-classifier/internal/history"
	"github.com/Brownie44l1/fruit-classifier/internal/logger"
	"github.com/Brownie44l1/fruit-classifier/internal/model"
	"github.com/Brownie44l1/fruit-classifier/internal/preprocess"
)

// discardStore satisfies history.Store when -history is off.
type discardStore struct{}

func (discardStore) Append(history.Record) error { return nil }
func (discardStore) LoadAll() []history.Record { return []history.Record{} }

func main() {
	record := flag.Bool("history", false, "Append results to the configured history file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-history] <image.jpg|image.png>...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	lg := logger.NewWithWriter(os.Stderr)

	loader := model.NewONNXLoader(cfg.ModelPath, cfg.MetadataPath, cfg.OnnxRuntimeLib)
	classifier, err := loader.Get()
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	defer loader.Close()

	var store history.Store = discardStore{}
	if *record {
		fileStore, err := history.NewFileStore(cfg.HistoryPath, lg)
		if err != nil {
			log.Fatalf("Failed to open history: %v", err)
		}
		store = fileStore
	}

	service := classify.NewService(loader, store, nil, preprocess.Options{Normalize: cfg.NormalizePixels, MaxPixels: cfg.MaxImagePixels}, logger.Discard())

	failed := 0
	for _, path := range flag.Args() {
		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}

		outcome, err := service.Classify(raw, filepath.Ext(path))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}

		resp := outcome.Response
		fmt.Printf("%s: %s (%s)\n", path, resp.DisplayClass, resp.ConfidencePercent)
		for i, label := range classifier.Labels() {
			if i < len(resp.RawScores) {
				fmt.Printf("  %-10s %s\n", model.DisplayLabel(label), model.FormatPercent(resp.RawScores[i]))
			}
		}
	}

	if *record {
		if stats, ok := history.Aggregate(store.LoadAll()); ok {
			fmt.Printf("History: %d predictions, average confidence %s\n",
				stats.Count, model.FormatPercent(float32(stats.AverageConfidence)))
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}
