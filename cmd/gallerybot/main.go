package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/gallerybot/gallerybot/internal/assembler"
	"github.com/gallerybot/gallerybot/internal/bot"
	"github.com/gallerybot/gallerybot/internal/config"
	"github.com/gallerybot/gallerybot/internal/delivery"
	"github.com/gallerybot/gallerybot/internal/fallback"
	"github.com/gallerybot/gallerybot/internal/fetch"
	"github.com/gallerybot/gallerybot/internal/gcp"
	"github.com/gallerybot/gallerybot/internal/models"
	"github.com/gallerybot/gallerybot/internal/provider"
	"github.com/gallerybot/gallerybot/internal/status"
)

func main() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("Service terminated with error.", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return err
	}
	defer firestoreClient.Close()
	records := gcp.NewGalleryRecordStore(firestoreClient, cfg.Collection)

	store, err := gcp.NewDocumentStore(ctx, cfg.DocumentBucket)
	if err != nil {
		return err
	}

	fetcher := fetch.NewClient(fetch.Options{Timeout: cfg.FetchTimeout})
	metadata := provider.NewClient(cfg.ProviderBaseURL, fetcher, cfg.FetchRetries)
	channel := bot.NewClient(cfg.ChannelBaseURL, nil)
	hosting := fallback.NewHTTPHosting(cfg.HostingBaseURL, cfg.HostingName, nil)
	renderer, err := fallback.NewRenderer(hosting)
	if err != nil {
		return err
	}
	asm := assembler.New(fetcher, assembler.Options{FetchRetries: cfg.FetchRetries})

	coordinator := delivery.New(metadata, store, channel, renderer, records, asm, cfg.CheckLimit)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.POST("/webhook", webhookHandler(coordinator))
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Webhook server listening.", "addr", cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// commandHandler is the slice of the coordinator the webhook needs.
type commandHandler interface {
	HandleGallery(ctx context.Context, chatID, galleryID int64) error
	HandleCheck(ctx context.Context, chatID, galleryID int64) error
}

// webhookHandler decodes inbound commands and dispatches to the
// coordinator. Command parsing stays thin here; policy lives in delivery.
func webhookHandler(coordinator commandHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		var update models.WebhookUpdate
		if err := c.Bind(&update); err != nil {
			return c.JSON(http.StatusBadRequest, models.WebhookResponse{OK: false})
		}

		ctx := c.Request().Context()
		switch {
		case strings.HasPrefix(update.Callback, status.CheckStatusAction+":"):
			raw := strings.TrimPrefix(update.Callback, status.CheckStatusAction+":")
			galleryID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return c.JSON(http.StatusBadRequest, models.WebhookResponse{OK: false})
			}
			if err := coordinator.HandleCheck(ctx, update.ChatID, galleryID); err != nil {
				slog.Error("Recheck handling failed.", "galleryId", galleryID, "error", err)
			}
		case update.GalleryID != 0:
			if err := coordinator.HandleGallery(ctx, update.ChatID, update.GalleryID); err != nil {
				slog.Error("Gallery handling failed.", "galleryId", update.GalleryID, "error", err)
			}
		default:
			return c.JSON(http.StatusBadRequest, models.WebhookResponse{OK: false})
		}

		return c.JSON(http.StatusOK, models.WebhookResponse{OK: true})
	}
}
