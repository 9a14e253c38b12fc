package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"PaperDigest/internal/config"
	"PaperDigest/internal/digest"
	"PaperDigest/internal/feedback"
	"PaperDigest/internal/httpapi"
	"PaperDigest/internal/infrastructure/email"
	"PaperDigest/internal/infrastructure/llm"
	"PaperDigest/internal/infrastructure/parser"
	"PaperDigest/internal/infrastructure/pdf"
	"PaperDigest/internal/infrastructure/storage"
	"PaperDigest/internal/infrastructure/telegram"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/scanner"
	"PaperDigest/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	db       *sql.DB
	pipeline *usecase.Pipeline
	agent    *usecase.LearningAgent
	notifier ports.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New opens storage, migrates it and builds the digest pipeline and the learning agent.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, repo, err := openStorage(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	scrapeClient := &http.Client{Timeout: cfg.Scraper.Timeout}
	registry := scanner.NewRegistry()
	registry.Register(parser.NewArxivScanner(scrapeClient, baseLogger.With("component", "scanner.arxiv"), parser.ArxivScannerOptions{
		BaseURL:   cfg.Scraper.BaseURL,
		UserAgent: cfg.Scraper.UserAgent,
		MaxPages:  cfg.Scraper.MaxPages,
		Pause:     cfg.Scraper.Pause,
	}))
	registry.Register(parser.NewRSSScanner(scrapeClient, baseLogger.With("component", "scanner.rss"), cfg.Scraper.RSSBaseURL, cfg.Scraper.UserAgent))

	source := parser.NewStrategySource(registry, cfg.Scraper.Strategy, baseLogger.With("component", "source"))

	chat := llm.NewClient(llm.Options{
		APIKey:   cfg.OpenAI.APIKey,
		Endpoint: cfg.OpenAI.Endpoint,
		Timeout:  cfg.OpenAI.Timeout,
	}, baseLogger.With("component", "llm"))

	var fullText ports.FullTextSource
	if cfg.Digest.ReadFullPDFs {
		fullText = pdf.NewSource(
			&http.Client{Timeout: cfg.Digest.PDFTimeout},
			cfg.Scraper.UserAgent,
			cfg.Digest.MaxPDFChars,
			baseLogger.With("component", "pdf"),
		)
	}

	var notifier ports.Notifier
	if cfg.Telegram.BotToken != "" {
		notifier = telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Endpoint)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:      source,
		Subscribers: repo,
		Papers:      repo,
		Classifier:  digest.NewClassifier(chat, cfg.OpenAI.ClassifierModel, cfg.OpenAI.Timeout, baseLogger.With("component", "classifier")),
		Reviewer: digest.NewReviewer(chat, fullText, digest.ReviewerOptions{
			Model:          cfg.OpenAI.ReviewModel,
			Timeout:        cfg.OpenAI.Timeout,
			MaxReviewChars: cfg.Digest.MaxReviewChars,
		}, baseLogger.With("component", "reviewer")),
		Mailer: email.NewSender(email.Options{
			APIKey:     cfg.Email.SendGridKey,
			Host:       cfg.Email.Host,
			FromEmail:  cfg.Email.FromEmail,
			FromName:   cfg.Email.FromName,
			MaxRetries: cfg.Email.MaxRetries,
			Backoff:    cfg.Email.Backoff,
		}, baseLogger.With("component", "email")),
		Notifier: notifier,
		Options: usecase.PipelineOptions{
			SiteURL:    cfg.Digest.SiteURL,
			SendEmpty:  cfg.Digest.SendEmpty,
			MaxAuthors: cfg.Digest.MaxAuthors,
		},
		Logger: baseLogger.With("component", "pipeline"),
	})

	policy := feedback.PolicyFromConfig(cfg.Feedback)
	agentLogger := baseLogger.With("component", "learning")
	agent := usecase.NewLearningAgent(usecase.LearningDeps{
		Subscribers: repo,
		Evaluator:   feedback.NewEvaluator(policy, repo, repo, agentLogger),
		Extractor: feedback.NewExtractor(policy, repo, chat, feedback.ExtractorOptions{
			Model:   cfg.OpenAI.AnalysisModel,
			Timeout: cfg.OpenAI.AnalysisTimeout,
		}, agentLogger),
		Materializer: feedback.NewMaterializer(policy, repo, agentLogger),
		Policy:       policy,
		Logger:       agentLogger,
	})

	return &Application{
		cfg:      cfg,
		db:       db,
		pipeline: pipeline,
		agent:    agent,
		notifier: notifier,
		logger:   baseLogger,
		now:      time.Now,
	}, nil
}

// RunDigest performs one digest run. force ignores the send schedule.
func (a *Application) RunDigest(ctx context.Context, force bool) error {
	stats, err := a.pipeline.Run(ctx, a.now(), force)
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	a.logger.Info("digest finished", "sent", stats.EmailsSent, "skipped", stats.EmailsSkipped, "failures", stats.Failures)
	return nil
}

// RunAgent performs one learning-agent pass and reports it to operators.
func (a *Application) RunAgent(ctx context.Context) error {
	now := a.now()
	stats, err := a.agent.Run(ctx, now)
	if err != nil {
		return fmt.Errorf("learning agent: %w", err)
	}
	a.logger.Info("learning agent finished", "analyzed", stats.Analyzed, "suggestions", stats.SuggestionsMade)
	if a.notifier != nil && stats.Analyzed > 0 {
		if err := a.notifier.PublishReport(ctx, stats.Report(now)); err != nil {
			a.logger.Warn("publish agent report failed", "error", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// API is the feedback HTTP service.
type API struct {
	server *http.Server
	db     *sql.DB
	logger *slog.Logger
}

// NewAPI opens storage and mounts the feedback routes.
func NewAPI(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*API, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, repo, err := openStorage(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	handler := httpapi.NewServer(repo, baseLogger.With("component", "api")).Router()
	return &API{
		server: &http.Server{
			Addr:              cfg.API.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		db:     db,
		logger: baseLogger,
	}, nil
}

// Serve blocks until ctx is cancelled or the listener fails.
func (a *API) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api listening", "addr", a.server.Addr)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = a.db.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.server.Shutdown(shutdownCtx)
	if cerr := a.db.Close(); err == nil {
		err = cerr
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, *storage.Repository, error) {
	db, err := storage.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	repo := storage.NewRepository(db, cfg.Driver)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate storage: %w", err)
	}
	return db, repo, nil
}
