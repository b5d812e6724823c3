package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gallerybot/gallerybot/internal/models"
)

// AuthError signals that the hosting provider rejected the access token. The
// renderer reacts by invalidating its account and page caches.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("fallback: hosting auth failed: %s", e.Reason)
}

// RenderError is a non-auth failure while creating the hosted page.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("fallback: page creation failed: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Hosting is the fallback hosting provider contract: plain request/response,
// no streaming.
type Hosting interface {
	CreateAccount(ctx context.Context) (*models.HostingAccount, error)
	CreatePage(ctx context.Context, accessToken, title string, content []models.ContentBlock) (string, error)
}

// HTTPHosting talks to a telegraph-style hosting API over JSON.
type HTTPHosting struct {
	baseURL    string
	shortName  string
	httpClient *http.Client
}

// NewHTTPHosting creates a hosting client. shortName labels the created
// account at the provider.
func NewHTTPHosting(baseURL, shortName string, httpClient *http.Client) *HTTPHosting {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPHosting{baseURL: baseURL, shortName: shortName, httpClient: httpClient}
}

type hostingEnvelope struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (h *HTTPHosting) CreateAccount(ctx context.Context) (*models.HostingAccount, error) {
	payload := map[string]string{"short_name": h.shortName}
	raw, err := h.post(ctx, "/createAccount", payload)
	if err != nil {
		return nil, err
	}
	var account models.HostingAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("decode createAccount result: %w", err)
	}
	return &account, nil
}

func (h *HTTPHosting) CreatePage(ctx context.Context, accessToken, title string, content []models.ContentBlock) (string, error) {
	payload := map[string]any{
		"access_token": accessToken,
		"title":        title,
		"content":      content,
	}
	raw, err := h.post(ctx, "/createPage", payload)
	if err != nil {
		return "", err
	}
	var page struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", fmt.Errorf("decode createPage result: %w", err)
	}
	return page.URL, nil
}

func (h *HTTPHosting) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Reason: resp.Status}
	}

	var envelope hostingEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	if !envelope.OK {
		if isAuthFailure(envelope.Error) {
			return nil, &AuthError{Reason: envelope.Error}
		}
		return nil, fmt.Errorf("%s rejected: %s", path, envelope.Error)
	}
	return envelope.Result, nil
}

func isAuthFailure(code string) bool {
	switch code {
	case "ACCESS_TOKEN_INVALID", "UNAUTHORIZED":
		return true
	}
	return false
}
