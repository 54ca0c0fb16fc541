package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bookbot/internal/app"
	"bookbot/internal/config"
	"bookbot/internal/server"
	"bookbot/internal/util"
	"bookbot/pkg/ai"
	"bookbot/pkg/domain"
	"bookbot/pkg/retrieval"
	"bookbot/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	// Store and index warm up independently; neither depends on the other.
	var (
		st  *store.GormStore
		idx *retrieval.Index
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		var err error
		st, err = store.NewGormStore(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		if cfg.BooksSeedPath != "" {
			if err := seedCatalog(ctx, st, cfg.BooksSeedPath); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		idx, err = retrieval.Load(cfg.RetrieverIndexPath)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("failed to init: %v", err)
	}

	var gateway ai.ChatCompleter
	if cfg.LLMBaseURL != "" {
		client, err := ai.NewOpenAICompatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTemperature, cfg.LLMTopP)
		if err != nil {
			log.Fatalf("failed to init model gateway: %v", err)
		}
		gateway = client
	} else {
		logger.Warn("no llmBaseURL configured, LLM chat endpoints will return 503")
	}

	appCore := app.New(st, idx, gateway, cfg.DefaultShopID)
	httpServer, err := server.New(server.Config{
		App:               appCore,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		ChatRatePerMinute: cfg.ChatRatePerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server listening", "addr", addr, "docs", idx.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}

// seedCatalog loads the catalog seed file and upserts its books. A missing
// file is not an error so the binary can start against a pre-seeded database.
func seedCatalog(ctx context.Context, st *store.GormStore, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("books seed file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read books seed: %w", err)
	}
	var books []domain.BookDetail
	if err := json.Unmarshal(raw, &books); err != nil {
		return fmt.Errorf("parse books seed: %w", err)
	}
	if err := st.SeedBooks(ctx, books); err != nil {
		return fmt.Errorf("seed books: %w", err)
	}
	slog.Info("catalog seeded", "books", len(books))
	return nil
}
