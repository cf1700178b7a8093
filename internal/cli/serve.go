package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/careledger/careledger/internal/config"
	"github.com/careledger/careledger/internal/engine"
	"github.com/careledger/careledger/internal/llm"
	"github.com/careledger/careledger/internal/pipeline"
	"github.com/careledger/careledger/internal/server"
	"github.com/careledger/careledger/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Resolve database path
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eng := engine.New(db)
	configureEmbedder(db, eng, cfg)

	// Summarizer requires an LLM; the recommender degrades to rules.
	var summarizer pipeline.Summarizer
	var recommender pipeline.Recommender = &pipeline.RuleRecommender{}
	if client, err := llm.NewClient(cfg.LLM); err != nil {
		fmt.Fprintf(os.Stderr, "warning: LLM not configured (%v), summaries disabled\n", err)
	} else {
		summarizer = &pipeline.LLMSummarizer{Client: client}
		recommender = &pipeline.LLMRecommender{Client: client}
		fmt.Fprintf(os.Stderr, "  llm: %s\n", cfg.LLM.Provider)
	}

	pipe := pipeline.New(eng, summarizer, recommender, nil,
		time.Duration(cfg.Memory.TimeoutSeconds)*time.Second)

	srv := server.New(db, eng, pipe, cfg.Memory, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "careledger serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

// configureEmbedder prefers a reachable Ollama instance and falls back to
// the TF-IDF embedder built from the stored corpus.
func configureEmbedder(db *store.DB, eng *engine.Engine, cfg config.Config) {
	ollamaURL := cfg.LLM.OllamaURL
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	embeddingModel := cfg.LLM.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}

	if engine.ProbeOllama(ollamaURL, embeddingModel) {
		eng.SetEmbedder(engine.NewOllamaEmbedder(ollamaURL, embeddingModel, 768))
		fmt.Fprintf(os.Stderr, "  embedder: ollama (%s)\n", embeddingModel)
		return
	}

	emb, err := engine.NewTFIDFEmbedder(db, 512)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: tfidf embedder init failed: %v\n", err)
		return
	}
	eng.SetEmbedder(emb)
	fmt.Fprintf(os.Stderr, "  embedder: tfidf (fallback)\n")
}
