package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"soccode/internal/embedding"
	"soccode/internal/search"
)

var (
	indexFile    string
	indexName    string
	indexDBPath  string
	indexTimeout time.Duration
)

// indexEntry is one row of the JSONL load file.
type indexEntry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Load occupation entries into the local vector index",
	Long: `Loads occupation codes and descriptions into the local SQLite
vector index for offline retrieval, embedding each description.

The input file is JSON Lines, one entry per line:

  {"id": "2951", "description": "Systems Developers"}

Example:
  soccode index --file soc4d.jsonl --name soc4d --db data/soccode.db`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexFile, "file", "", "JSONL file of entries to load")
	indexCmd.Flags().StringVar(&indexName, "name", "", "Index name the entries belong to")
	indexCmd.Flags().StringVar(&indexDBPath, "db", "", "SQLite database path (default from config)")
	indexCmd.Flags().DurationVar(&indexTimeout, "timeout", 30*time.Minute, "Overall load timeout")
	indexCmd.MarkFlagRequired("file")
	indexCmd.MarkFlagRequired("name")
}

func runIndex(cmd *cobra.Command, args []string) error {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.EmbeddingTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding engine: %w", err)
	}

	dbPath := indexDBPath
	if dbPath == "" {
		dbPath = cfg.Search.DatabasePath
	}
	local, err := search.OpenLocalIndex(dbPath)
	if err != nil {
		return err
	}
	defer local.Close()

	file, err := os.Open(indexFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), indexTimeout)
	defer cancel()

	loaded := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry indexEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("entry %d: failed to parse: %w", loaded+1, err)
		}
		if entry.ID == "" || entry.Description == "" {
			return fmt.Errorf("entry %d: id and description are required", loaded+1)
		}

		vector, err := engine.Embed(ctx, entry.Description)
		if err != nil {
			return fmt.Errorf("entry %s: %w", entry.ID, err)
		}
		if err := local.Add(ctx, indexName, entry.ID, entry.Description, vector); err != nil {
			return fmt.Errorf("entry %s: %w", entry.ID, err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	total, err := local.Count(ctx, indexName)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d entries into %s (%d total)\n", loaded, indexName, total)
	return nil
}
