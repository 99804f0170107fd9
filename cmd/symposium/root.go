package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/symposium/internal/adapters/llm"
	badgerstore "github.com/PabloGalante/symposium/internal/adapters/storage/badger"
	firestorestore "github.com/PabloGalante/symposium/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/symposium/internal/adapters/storage/memory"
	"github.com/PabloGalante/symposium/internal/app/conversation"
	"github.com/PabloGalante/symposium/internal/catalog"
	"github.com/PabloGalante/symposium/internal/config"
	"github.com/PabloGalante/symposium/internal/domain"
	"github.com/PabloGalante/symposium/internal/observability"
)

type rootFlags struct {
	storage  string
	mock     bool
	catalog  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "symposium",
		Short:         "Streaming chat with simulated personas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, loaded); err != nil {
				return err
			}
			observability.SetLevel(loaded.LogLevel)
			*cfg = *loaded
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.storage, "storage", "", "storage backend: memory, firestore or badger")
	pf.BoolVar(&flags.mock, "mock", false, "use the offline mock model")
	pf.StringVar(&flags.catalog, "catalog", "", "persona catalog YAML file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newServeCmd(cfg), newChatCmd(cfg))
	return root
}

// apply overrides cfg with the flags that were set explicitly.
func (f rootFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	pf := cmd.Flags()
	if pf.Changed("storage") {
		switch f.storage {
		case config.StorageMemory, config.StorageFirestore, config.StorageBadger:
		default:
			return fmt.Errorf("--storage: unknown backend %q", f.storage)
		}
		cfg.StorageBackend = f.storage
	}
	if pf.Changed("mock") {
		cfg.UseMockLLM = f.mock
	}
	if pf.Changed("catalog") {
		cfg.CatalogPath = f.catalog
	}
	if pf.Changed("log-level") {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(f.logLevel)); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		cfg.LogLevel = lvl
	}
	return nil
}

// model is implemented by both the Gemini client and the mock.
type model interface {
	domain.LLMClient
	domain.ContextSummarizer
	domain.TitleInferrer
	domain.PersonaSuggester
}

// app is the wired service plus what has to be released with it.
type app struct {
	svc     *conversation.Service
	catalog *catalog.Catalog
	closers []func() error
}

func (a *app) Close(ctx context.Context) error {
	errs := []error{a.svc.Close(ctx)}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := observability.Logger()

	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading persona catalog: %w", err)
	}

	var m model
	if cfg.UseMockLLM {
		log.Info("using mock LLM client")
		m = llm.NewMockLLM()
	} else {
		log.Info("using Gemini LLM client", "model", cfg.ModelName, "vertex", cfg.APIKey == "")
		m = llm.NewGeminiClient(llm.GeminiConfig{
			APIKey:   cfg.APIKey,
			Project:  cfg.GCPProjectID,
			Location: cfg.GCPLocation,
			Model:    cfg.ModelName,
		})
	}

	a := &app{catalog: cat}

	var (
		sessions domain.SessionStore
		messages domain.MessageStore
	)
	switch cfg.StorageBackend {
	case config.StorageFirestore:
		log.Info("using Firestore storage", "project", cfg.GCPProjectID)
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		// 1 store, implements 2 interfaces
		sessions, messages = fs, fs
		a.closers = append(a.closers, fs.Close)
	case config.StorageBadger:
		log.Info("using Badger storage", "dir", cfg.BadgerDir)
		bs, err := badgerstore.Open(badgerstore.Options{Dir: cfg.BadgerDir, Logger: log})
		if err != nil {
			return nil, err
		}
		sessions, messages = bs, bs
		a.closers = append(a.closers, bs.Close)
	default:
		log.Info("using in-memory storage")
		sessions = memstore.NewSessionStore()
		messages = memstore.NewMessageStore()
	}

	opts := conversation.DefaultOptions()
	opts.FrameInterval = cfg.FrameInterval
	opts.CommitDelay = cfg.CommitDelay
	opts.FailurePolicy = cfg.FailurePolicy
	opts.HistoryLimit = cfg.HistoryLimit
	opts.Settings = cfg.Settings

	a.svc = conversation.NewService(conversation.Dependencies{
		LLM:        m,
		Summarizer: m,
		Titles:     m,
		Suggester:  m,
		Personas:   cat,
		Sessions:   sessions,
		Messages:   messages,
	}, opts)
	return a, nil
}
