// Package fallback creates and caches hosted read-only gallery pages, the
// alternative delivery channel used when the PDF cannot be produced or sent.
// This path never touches image bytes; pages reference remote URLs directly.
package fallback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/gallerybot/gallerybot/internal/models"
)

// pageCacheSize bounds the process-lifetime page URL cache.
const pageCacheSize = 512

// Renderer renders galleries as hosted pages. One hosting account is created
// lazily and reused for the process lifetime; page URLs are cached per
// gallery id. Safe for concurrent use.
type Renderer struct {
	hosting Hosting

	mu      sync.Mutex
	account *models.HostingAccount
	pages   *lru.Cache[int64, string]

	// accountFlight collapses concurrent lazy account creation into one
	// provider call.
	accountFlight singleflight.Group
}

// NewRenderer creates a Renderer around the given hosting provider.
func NewRenderer(hosting Hosting) (*Renderer, error) {
	pages, err := lru.New[int64, string](pageCacheSize)
	if err != nil {
		return nil, err
	}
	return &Renderer{hosting: hosting, pages: pages}, nil
}

// Render returns the hosted page URL for a gallery, creating the page on
// first call and serving the cached URL afterwards. On an authorization
// failure both caches are invalidated and one fresh attempt is made.
func (r *Renderer) Render(ctx context.Context, galleryID int64, title string, images []models.GalleryImage) (string, error) {
	if url, ok := r.pages.Get(galleryID); ok {
		return url, nil
	}

	url, err := r.createPage(ctx, galleryID, title, images)
	var authErr *AuthError
	if errors.As(err, &authErr) {
		slog.Warn("Hosting rejected credentials, invalidating caches.", "galleryId", galleryID, "reason", authErr.Reason)
		r.invalidate()
		url, err = r.createPage(ctx, galleryID, title, images)
	}
	if err != nil {
		return "", &RenderError{Err: err}
	}

	r.pages.Add(galleryID, url)
	return url, nil
}

func (r *Renderer) createPage(ctx context.Context, galleryID int64, title string, images []models.GalleryImage) (string, error) {
	token, err := r.accessToken(ctx)
	if err != nil {
		return "", err
	}
	return r.hosting.CreatePage(ctx, token, title, buildContent(title, images))
}

// accessToken returns the cached account token, creating the account on
// first need. Concurrent first calls share one creation.
func (r *Renderer) accessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	account := r.account
	r.mu.Unlock()
	if account != nil {
		return account.AccessToken, nil
	}

	v, err, _ := r.accountFlight.Do("account", func() (any, error) {
		account, err := r.hosting.CreateAccount(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.account = account
		r.mu.Unlock()
		slog.Info("Created fallback hosting account.")
		return account, nil
	})
	if err != nil {
		return "", err
	}
	return v.(*models.HostingAccount).AccessToken, nil
}

// invalidate drops the account and every cached page URL, forcing full
// re-creation on the next call.
func (r *Renderer) invalidate() {
	r.mu.Lock()
	r.account = nil
	r.mu.Unlock()
	r.pages.Purge()
}

// buildContent lays out the page: one heading, then one figure per image
// referencing its remote URL.
func buildContent(title string, images []models.GalleryImage) []models.ContentBlock {
	blocks := make([]models.ContentBlock, 0, len(images)+1)
	blocks = append(blocks, models.ContentBlock{Tag: "h3", Children: []any{title}})
	for _, img := range images {
		blocks = append(blocks, models.ContentBlock{
			Tag: "figure",
			Children: []any{models.ContentBlock{
				Tag:   "img",
				Attrs: map[string]string{"src": img.URL},
			}},
		})
	}
	return blocks
}
