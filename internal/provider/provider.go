// Package provider implements the content metadata provider client.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gallerybot/gallerybot/internal/fetch"
	"github.com/gallerybot/gallerybot/internal/models"
)

// ErrGalleryNotFound is returned when the provider has no gallery for the id.
var ErrGalleryNotFound = fmt.Errorf("provider: gallery not found")

// Client fetches gallery metadata. Requests go through the shared retrying
// fetch primitive so metadata calls follow the same timeout policy as image
// downloads.
type Client struct {
	baseURL string
	fetcher *fetch.Client
	retries int
}

// NewClient creates a provider client. retries is the per-request retry
// budget handed to the fetcher.
func NewClient(baseURL string, fetcher *fetch.Client, retries int) *Client {
	return &Client{baseURL: baseURL, fetcher: fetcher, retries: retries}
}

// Gallery retrieves a gallery's metadata by id.
func (c *Client) Gallery(ctx context.Context, id int64) (*models.Gallery, error) {
	url := fmt.Sprintf("%s/gallery/%d", c.baseURL, id)
	resp, err := c.fetcher.Fetch(ctx, url, c.retries)
	if err != nil {
		return nil, fmt.Errorf("fetch gallery %d: %w", id, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrGalleryNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gallery %d: unexpected status %d", id, resp.StatusCode)
	}

	var gallery models.Gallery
	if err := json.Unmarshal(resp.Body, &gallery); err != nil {
		return nil, fmt.Errorf("decode gallery %d: %w", id, err)
	}
	return &gallery, nil
}
