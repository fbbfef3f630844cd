// Package main runs the post approval service: topics feed a content backend,
// generated posts wait for human approval and approved posts are published.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"postpilot/config"
	"postpilot/content"
	"postpilot/email"
	"postpilot/generate"
	"postpilot/metrics"
	"postpilot/pkg/postpilot"
	"postpilot/post"
	"postpilot/publish"
	"postpilot/schedule"
	"postpilot/scraper"
	"postpilot/server"
	"postpilot/topic"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Scheduled runs get headroom over the content timeout for storage and notification.
const runTimeoutMargin = 30 * time.Second

func init() {
	// Keep gin's debug route dump out of the JSON log stream.
	gin.SetMode(gin.ReleaseMode)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m := metrics.New()

	backend, err := newContentBackend(ctx, cfg.Content, logger)
	if err != nil {
		return err
	}

	publisher, closePublisher, err := newPublisher(ctx, cfg.Publish, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	notifier := email.New(newEmailProvider(ctx, cfg.Email, logger), logger, cfg.Server.BaseURL, cfg.Email.Approver)

	topics := topic.New(logger)
	posts := post.New(&post.Config{
		Publisher:      publisher,
		PublishTimeout: cfg.Publish.Timeout,
		Metrics:        m,
		Logger:         logger,
	})
	orch := generate.New(&generate.Config{
		Topics:          topics,
		Content:         backend,
		Store:           posts,
		Notifier:        notifier,
		GenerateTimeout: cfg.Content.Timeout,
		NotifyTimeout:   cfg.Email.Timeout,
		Metrics:         m,
		Logger:          logger,
	})
	engine := schedule.New(&schedule.Config{
		Generator:  orch,
		RunTimeout: cfg.Content.Timeout + cfg.Email.Timeout + runTimeoutMargin,
		Metrics:    m,
		Logger:     logger,
	})
	if _, err := engine.Update(startupSchedule(cfg.Schedule)); err != nil {
		return fmt.Errorf("startup schedule: %w", err)
	}

	srv := server.New(&server.Config{
		Topics:    topics,
		Posts:     posts,
		Scheduler: engine,
		Generator: orch,
		Importer:  scraper.New(&http.Client{Timeout: 30 * time.Second}, logger),
		Metrics:   m,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		engine.Stop()
		return nil
	})
	return g.Wait()
}

func startupSchedule(s config.ScheduleConfig) postpilot.ScheduleConfig {
	return postpilot.ScheduleConfig{
		Frequency: postpilot.Frequency(s.Frequency),
		Time:      s.Time,
		Timezone:  s.Timezone,
		IsActive:  s.IsActive(),
	}
}

// newContentBackend returns a backend that fails fast when its key is missing;
// the orchestrator then falls back to the fixed template.
func newContentBackend(ctx context.Context, cfg config.ContentConfig, logger *slog.Logger) (generate.ContentGenerator, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.GeminiKey == "" {
			logger.Warn("GEMINI_API_KEY not set, posts will use the fallback template")
			return content.Unavailable{Reason: "GEMINI_API_KEY not set"}, nil
		}
		g, err := content.NewGemini(ctx, content.GeminiConfig{
			APIKey: cfg.GeminiKey,
			Model:  cfg.GeminiModel,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini backend: %w", err)
		}
		return g, nil
	default:
		if cfg.OpenAIKey == "" {
			logger.Warn("OPENAI_API_KEY not set, posts will use the fallback template")
			return content.Unavailable{Reason: "OPENAI_API_KEY not set"}, nil
		}
		o, err := content.NewOpenAI(content.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("openai backend: %w", err)
		}
		return o, nil
	}
}

func newPublisher(ctx context.Context, cfg config.PublishConfig, logger *slog.Logger) (post.Publisher, func(), error) {
	noop := func() {}
	switch cfg.Provider {
	case "x":
		x, err := publish.NewX(ctx, cfg.XAccessToken, cfg.XAPIURL, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("x publisher: %w", err)
		}
		logger.Info("Publishing to X", "api_url", cfg.XAPIURL)
		return x, noop, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("storage client: %w", err)
		}
		logger.Info("Publishing to Cloud Storage", "bucket", cfg.Bucket)
		closeClient := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}
		return publish.NewBucket(client, cfg.Bucket, "", logger), closeClient, nil
	default:
		logger.Info("Publishing to local directory", "path", cfg.LocalDir)
		return publish.NewBucket(nil, "", cfg.LocalDir, logger), noop, nil
	}
}

func newEmailProvider(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) email.Provider {
	switch cfg.Provider {
	case "brevo":
		logger.Info("Using Brevo email provider", "from", cfg.From)
		return email.NewBrevoProvider(cfg.BrevoAPIKey, cfg.From, cfg.FromName, logger)
	case "gmail":
		service, err := initGmailService(ctx, cfg.GoogleCredsJSON)
		if err != nil {
			logger.Warn("Failed to initialize Gmail service, using mock email", "error", err)
			return email.NewMockProvider(logger)
		}
		logger.Info("Using Gmail email provider")
		return email.NewGmailProvider(service, logger)
	default:
		logger.Info("Mock email mode enabled")
		return email.NewMockProvider(logger)
	}
}

func initGmailService(ctx context.Context, credsJSON string) (*gmail.Service, error) {
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// Application Default Credentials; the service account needs the gmail.send scope.
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", http.NoBody)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}
