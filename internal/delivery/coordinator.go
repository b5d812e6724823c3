// Package delivery decides, per command, whether the user gets the finished
// document, a status message with a recheck action, or the hosted fallback
// page, and then executes that decision.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gallerybot/gallerybot/internal/models"
	"github.com/gallerybot/gallerybot/internal/status"
)

// DefaultCheckLimit bounds manual status rechecks per gallery.
const DefaultCheckLimit = 10

// Kind is the outcome of the delivery policy.
type Kind int

const (
	SendDocument Kind = iota
	ShowStatusWithAction
	RenderFallback
)

// Decide is the pure delivery policy, evaluated in order:
// a completed, locatable document is sent; a processing document under the
// recheck limit shows status with a recheck action; a counter at the limit
// forces the fallback regardless of status; everything else falls back.
func Decide(st status.Status, documentLocatable bool, checkCount, limit int) Kind {
	switch {
	case st == status.Completed && documentLocatable:
		return SendDocument
	case st == status.Processing && checkCount < limit:
		return ShowStatusWithAction
	default:
		return RenderFallback
	}
}

// MetadataProvider supplies gallery metadata.
type MetadataProvider interface {
	Gallery(ctx context.Context, id int64) (*models.Gallery, error)
}

// DocumentStore is the durable store holding finished documents.
type DocumentStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	SaveAtomically(ctx context.Context, key string, data []byte) error
}

// Channel is the delivery channel to the requester.
type Channel interface {
	SendDocument(ctx context.Context, chatID int64, document []byte, filename, caption string) error
	SendMessage(ctx context.Context, chatID int64, text string, actions []status.Action) error
}

// FallbackRenderer creates the hosted read-only page.
type FallbackRenderer interface {
	Render(ctx context.Context, galleryID int64, title string, images []models.GalleryImage) (string, error)
}

// RecordStore persists production status and the recheck counter. It must
// keep concurrent counter increments for the same gallery consistent.
type RecordStore interface {
	Record(ctx context.Context, galleryID int64) (*models.GalleryRecord, error)
	SetStatus(ctx context.Context, galleryID int64, st, errDetails string) error
	SetDocumentKey(ctx context.Context, galleryID int64, key string, pageCount int) error
	IncrementCheckCount(ctx context.Context, galleryID int64) (int, error)
}

// DocumentAssembler builds the PDF from gallery images.
type DocumentAssembler interface {
	Assemble(ctx context.Context, images []models.GalleryImage, onProgress models.ProgressFunc) ([]byte, error)
}

// Coordinator wires the policy to its collaborators.
type Coordinator struct {
	provider   MetadataProvider
	store      DocumentStore
	channel    Channel
	fallback   FallbackRenderer
	records    RecordStore
	assembler  DocumentAssembler
	checkLimit int
}

// New creates a Coordinator. checkLimit <= 0 selects DefaultCheckLimit.
func New(provider MetadataProvider, store DocumentStore, channel Channel, fallback FallbackRenderer, records RecordStore, assembler DocumentAssembler, checkLimit int) *Coordinator {
	if checkLimit <= 0 {
		checkLimit = DefaultCheckLimit
	}
	return &Coordinator{
		provider:   provider,
		store:      store,
		channel:    channel,
		fallback:   fallback,
		records:    records,
		assembler:  assembler,
		checkLimit: checkLimit,
	}
}

// HandleGallery processes a fresh gallery command: runs production if this
// gallery has never been requested, then delivers per policy.
func (c *Coordinator) HandleGallery(ctx context.Context, chatID, galleryID int64) error {
	return c.handle(ctx, chatID, galleryID, true)
}

// HandleCheck processes a manual status recheck. It never starts production.
func (c *Coordinator) HandleCheck(ctx context.Context, chatID, galleryID int64) error {
	return c.handle(ctx, chatID, galleryID, false)
}

func (c *Coordinator) handle(ctx context.Context, chatID, galleryID int64, produceIfNeeded bool) error {
	logCtx := slog.With("galleryId", galleryID, "chatId", chatID)

	gallery, err := c.provider.Gallery(ctx, galleryID)
	if err != nil {
		logCtx.Error("Failed to load gallery metadata.", "error", err)
		return c.channel.SendMessage(ctx, chatID, "That gallery could not be loaded.", nil)
	}

	rec, err := c.records.Record(ctx, galleryID)
	if err != nil {
		logCtx.Error("Failed to read gallery record.", "error", err)
		return c.channel.SendMessage(ctx, chatID, status.ViewFor(status.Error, galleryID).Message, nil)
	}

	st := currentStatus(rec, gallery)
	key := documentKey(gallery, rec)

	if st == status.NotRequested && produceIfNeeded {
		st = c.produce(ctx, logCtx, gallery, key)
	}

	locatable := false
	if st == status.Completed {
		locatable, err = c.store.Exists(ctx, key)
		if err != nil {
			logCtx.Warn("Failed to check document existence.", "key", key, "error", err)
		}
	}

	switch Decide(st, locatable, rec.CheckCount, c.checkLimit) {
	case SendDocument:
		return c.sendDocument(ctx, logCtx, chatID, gallery, key)

	case ShowStatusWithAction:
		if _, err := c.records.IncrementCheckCount(ctx, galleryID); err != nil {
			logCtx.Warn("Failed to increment check counter.", "error", err)
		}
		view := status.ViewFor(st, galleryID)
		return c.channel.SendMessage(ctx, chatID, view.Message, view.Actions)

	default:
		return c.renderFallback(ctx, logCtx, chatID, gallery)
	}
}

// sendDocument delivers the stored document. Failures here surface as an
// explicit error message (never the fallback page) so "present but
// undeliverable" stays distinguishable from "truly absent".
func (c *Coordinator) sendDocument(ctx context.Context, logCtx *slog.Logger, chatID int64, gallery *models.Gallery, key string) error {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		logCtx.Error("Document was locatable but could not be read.", "key", key, "error", err)
		return c.channel.SendMessage(ctx, chatID, "The PDF exists but could not be delivered. Please try again.", nil)
	}

	filename := fmt.Sprintf("%d.pdf", gallery.ID)
	if err := c.channel.SendDocument(ctx, chatID, data, filename, gallery.Title); err != nil {
		logCtx.Error("Document send failed.", "key", key, "error", err)
		return c.channel.SendMessage(ctx, chatID, "The PDF exists but could not be delivered. Please try again.", nil)
	}
	logCtx.Info("Document delivered.", "key", key, "bytes", len(data))
	return nil
}

func (c *Coordinator) renderFallback(ctx context.Context, logCtx *slog.Logger, chatID int64, gallery *models.Gallery) error {
	pageURL, err := c.fallback.Render(ctx, gallery.ID, gallery.Title, gallery.Images)
	if err != nil {
		logCtx.Error("Fallback page rendering failed.", "error", err)
		return c.channel.SendMessage(ctx, chatID, "Something went wrong. Please try again later.", nil)
	}
	return c.channel.SendMessage(ctx, chatID, fmt.Sprintf("Read it here instead: %s", pageURL), nil)
}

// produce runs one in-process production: assemble, persist, record. The
// returned status is what the delivery policy should now see.
func (c *Coordinator) produce(ctx context.Context, logCtx *slog.Logger, gallery *models.Gallery, key string) status.Status {
	logCtx.Info("Starting document production.", "images", len(gallery.Images))
	if err := c.records.SetStatus(ctx, gallery.ID, string(status.Processing), ""); err != nil {
		logCtx.Error("Failed to record PROCESSING status.", "error", err)
		return status.Error
	}

	pages := 0
	data, err := c.assembler.Assemble(ctx, gallery.Images, func(ev models.ProgressEvent) {
		switch ev.Phase {
		case models.PhaseEmbedding:
			pages = ev.Current
		case models.PhaseError:
			logCtx.Warn("Assembly progress error.", "current", ev.Current, "total", ev.Total, "error", ev.Err)
		}
	})
	if err != nil {
		c.recordFailure(ctx, logCtx, gallery.ID, "assembly failed", err)
		return status.Failed
	}

	if err := c.store.SaveAtomically(ctx, key, data); err != nil {
		c.recordFailure(ctx, logCtx, gallery.ID, "failed to persist document", err)
		return status.Failed
	}
	if err := c.records.SetDocumentKey(ctx, gallery.ID, key, pages); err != nil {
		logCtx.Warn("Failed to record document key.", "error", err)
	}
	if err := c.records.SetStatus(ctx, gallery.ID, string(status.Completed), ""); err != nil {
		logCtx.Error("Failed to record COMPLETED status.", "error", err)
		return status.Error
	}
	logCtx.Info("Document production complete.", "key", key, "bytes", len(data))
	return status.Completed
}

func (c *Coordinator) recordFailure(ctx context.Context, logCtx *slog.Logger, galleryID int64, message string, cause error) {
	logCtx.Error("Document production failed.", "reason", message, "error", cause)
	if err := c.records.SetStatus(ctx, galleryID, string(status.Failed), fmt.Sprintf("%s: %v", message, cause)); err != nil {
		logCtx.Error("CRITICAL: Failed to record FAILED status after a production error.", "updateError", err)
	}
}

// currentStatus resolves the production status: the local record wins, the
// provider's reported status fills in for galleries never seen locally.
func currentStatus(rec *models.GalleryRecord, gallery *models.Gallery) status.Status {
	if rec.Status != "" {
		return status.Status(rec.Status)
	}
	if gallery.ProductionStatus != "" {
		return status.Status(gallery.ProductionStatus)
	}
	return status.NotRequested
}

// documentKey derives the storage key: the recorded key if production ran
// here, else the documentUrl path, else a stable per-gallery default.
func documentKey(gallery *models.Gallery, rec *models.GalleryRecord) string {
	if rec.DocumentKey != "" {
		return rec.DocumentKey
	}
	if gallery.DocumentURL != "" {
		if u, err := url.Parse(gallery.DocumentURL); err == nil && u.Path != "" {
			return strings.TrimPrefix(u.Path, "/")
		}
	}
	return fmt.Sprintf("documents/%d.pdf", gallery.ID)
}
