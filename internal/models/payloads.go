package models

// These structs define the JSON payloads exchanged with the chat platform
// webhook and the fallback hosting provider.

// WebhookUpdate is the inbound command decoded by the webhook route. Either
// GalleryID is set (a fresh gallery command) or Callback carries an action
// token of the form "<action>:<galleryId>".
type WebhookUpdate struct {
	ChatID    int64  `json:"chat_id"`
	GalleryID int64  `json:"gallery_id,omitempty"`
	Callback  string `json:"callback,omitempty"`
}

// WebhookResponse acknowledges a processed update.
type WebhookResponse struct {
	OK bool `json:"ok"`
}

// HostingAccount is the credential returned by the fallback hosting
// provider's createAccount call.
type HostingAccount struct {
	AccessToken string `json:"access_token"`
}

// ContentBlock is one node of a fallback page: a heading or a figure
// referencing a remote image URL.
type ContentBlock struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []any             `json:"children,omitempty"`
}
