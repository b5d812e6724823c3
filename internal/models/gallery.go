package models

import "time"

// GalleryImage is one page of a remote gallery as reported by the content
// metadata provider. Width and height are advisory; the assembler trusts the
// decoded bytes for page sizing.
type GalleryImage struct {
	URL    string `json:"url"`
	Width  int    `json:"w"`
	Height int    `json:"h"`
	Format string `json:"format"`
}

// Gallery is the provider's view of a gallery: an ordered image list plus the
// production status reported for its downloadable document.
type Gallery struct {
	ID               int64          `json:"id"`
	Title            string         `json:"title"`
	Images           []GalleryImage `json:"pages"`
	ProductionStatus string         `json:"productionStatus"`
	DocumentURL      string         `json:"documentUrl,omitempty"`
}

// ProgressPhase identifies which stage of document assembly a progress event
// refers to.
type ProgressPhase string

const (
	PhaseDownloading ProgressPhase = "downloading"
	PhaseEmbedding   ProgressPhase = "embedding"
	PhaseSaving      ProgressPhase = "saving"
	PhaseError       ProgressPhase = "error"
)

// ProgressEvent is a point-in-time report emitted during assembly. It exists
// for UI feedback only and is never persisted.
type ProgressEvent struct {
	Phase   ProgressPhase
	Current int
	Total   int
	Err     error
}

// ProgressFunc receives progress events during assembly. A nil ProgressFunc
// is valid and disables reporting.
type ProgressFunc func(ProgressEvent)

// GalleryRecord is the per-gallery job record persisted in Firestore. It
// tracks document production status and the manual recheck counter.
type GalleryRecord struct {
	GalleryID    int64     `firestore:"galleryId"`
	Status       string    `firestore:"status,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	DocumentKey  string    `firestore:"documentKey,omitempty"`
	CheckCount   int       `firestore:"checkCount"`
	PageCount    int       `firestore:"pageCount,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt,omitempty"`
}
