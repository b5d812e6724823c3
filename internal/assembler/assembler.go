// Package assembler builds a paginated PDF from an ordered list of remote
// gallery images. Images are processed strictly in order, one at a time; a
// single image failing never aborts the batch.
package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"

	_ "image/jpeg" // register decoders for DecodeConfig

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/webp"

	"github.com/gallerybot/gallerybot/internal/fetch"
	"github.com/gallerybot/gallerybot/internal/models"
)

// MaxImages caps a single assembly run. The cap reflects an externally
// imposed per-request subrequest quota.
const MaxImages = 49

// ErrEmptyDocument is returned when not a single image could be embedded.
var ErrEmptyDocument = errors.New("assembler: no pages could be embedded")

var errUnsupportedFormat = errors.New("assembler: unsupported image format")

// Fetcher is the one-shot retrying fetch primitive the assembler downloads
// image bytes with.
type Fetcher interface {
	Fetch(ctx context.Context, url string, retries int) (*fetch.Response, error)
}

// Options configures an Assembler.
type Options struct {
	// FetchRetries is the retry budget per image download. Default: 2.
	FetchRetries int
}

// Assembler builds gallery PDFs. Safe for concurrent use; each Assemble call
// is independent.
type Assembler struct {
	fetcher Fetcher
	retries int
	conf    *model.Configuration
}

// New creates an Assembler around the given fetcher.
func New(fetcher Fetcher, opts Options) *Assembler {
	if opts.FetchRetries <= 0 {
		opts.FetchRetries = 2
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Assembler{
		fetcher: fetcher,
		retries: opts.FetchRetries,
		conf:    conf,
	}
}

// embeddable is a per-image result that survived download and decode: bytes
// ready to hand to the PDF writer plus the native pixel dimensions the page
// will take. Failed images never become an embeddable; they are skipped with
// a reason instead.
type embeddable struct {
	data   []byte
	width  int
	height int
}

// Assemble downloads and embeds up to MaxImages images into a PDF, one page
// per image, each page sized to the image's native pixel dimensions. The
// returned bytes are nil only on whole-document failure (zero pages).
// onProgress may be nil.
func (a *Assembler) Assemble(ctx context.Context, images []models.GalleryImage, onProgress models.ProgressFunc) ([]byte, error) {
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}
	emit := func(ev models.ProgressEvent) {
		if onProgress != nil {
			onProgress(ev)
		}
	}

	total := len(images)
	var doc []byte
	pages := 0

	for i, img := range images {
		emit(models.ProgressEvent{Phase: models.PhaseDownloading, Current: i + 1, Total: total})

		data, err := a.download(ctx, img.URL)
		if err != nil {
			slog.Warn("Image download failed, skipping.", "url", img.URL, "error", err)
			emit(models.ProgressEvent{Phase: models.PhaseError, Current: i + 1, Total: total, Err: err})
			continue
		}

		emb, err := prepare(img.Format, data)
		if err != nil {
			if errors.Is(err, errUnsupportedFormat) {
				// Unknown formats are skipped without ceremony.
				slog.Debug("Skipping image with unsupported format.", "url", img.URL, "format", img.Format)
				continue
			}
			slog.Warn("Image decode failed, skipping.", "url", img.URL, "error", err)
			emit(models.ProgressEvent{Phase: models.PhaseError, Current: i + 1, Total: total, Err: err})
			continue
		}

		doc, err = appendPage(doc, emb, a.conf)
		if err != nil {
			slog.Warn("Image embed failed, skipping.", "url", img.URL, "error", err)
			emit(models.ProgressEvent{Phase: models.PhaseError, Current: i + 1, Total: total, Err: err})
			continue
		}
		pages++
		emit(models.ProgressEvent{Phase: models.PhaseEmbedding, Current: i + 1, Total: total})
	}

	if pages == 0 {
		emit(models.ProgressEvent{Phase: models.PhaseError, Total: total, Err: ErrEmptyDocument})
		return nil, ErrEmptyDocument
	}

	emit(models.ProgressEvent{Phase: models.PhaseSaving, Current: pages, Total: total})
	return doc, nil
}

func (a *Assembler) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := a.fetcher.Fetch(ctx, url, a.retries)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// prepare turns raw image bytes into an embeddable based on the declared
// format. jpg/jpeg/png embed as-is; webp is decoded and re-encoded to PNG;
// anything else is unsupported.
func prepare(format string, data []byte) (*embeddable, error) {
	switch strings.ToLower(format) {
	case "jpg", "jpeg", "png":
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s dimensions: %w", format, err)
		}
		return &embeddable{data: data, width: cfg.Width, height: cfg.Height}, nil
	case "webp":
		return convertWebP(data)
	default:
		return nil, errUnsupportedFormat
	}
}

// convertWebP decodes a webp image and re-encodes it as PNG so the PDF
// writer can embed it.
func convertWebP(data []byte) (*embeddable, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode webp: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("re-encode webp as png: %w", err)
	}
	b := img.Bounds()
	return &embeddable{data: buf.Bytes(), width: b.Dx(), height: b.Dy()}, nil
}

// appendPage adds one page to doc holding the image at its native size. A
// nil doc starts a fresh document.
func appendPage(doc []byte, emb *embeddable, conf *model.Configuration) ([]byte, error) {
	imp, err := pdfcpu.ParseImportDetails(fmt.Sprintf("dim:%d %d, pos:full", emb.width, emb.height), types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build import config: %w", err)
	}

	var rs io.ReadSeeker
	if doc != nil {
		rs = bytes.NewReader(doc)
	}

	var buf bytes.Buffer
	if err := api.ImportImages(rs, &buf, []io.Reader{bytes.NewReader(emb.data)}, imp, conf); err != nil {
		return nil, fmt.Errorf("import image: %w", err)
	}
	return buf.Bytes(), nil
}
