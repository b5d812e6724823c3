// Package bot implements the delivery channel client: messages and document
// uploads to a messaging-API style endpoint.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gallerybot/gallerybot/internal/status"
)

// Client sends messages and documents to chats. Send failures surface as
// errors; the coordinator decides what the user sees.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a delivery channel client. baseURL already carries any
// credential path segment.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// SendMessage sends a text message with optional inline action buttons built
// from status actions.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, actions []status.Action) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if len(actions) > 0 {
		row := make([]inlineButton, 0, len(actions))
		for _, a := range actions {
			row = append(row, inlineButton{Text: a.Label, CallbackData: a.Token})
		}
		payload["reply_markup"] = map[string]any{"inline_keyboard": [][]inlineButton{row}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode sendMessage payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// SendDocument uploads document bytes as a file attachment with a caption.
func (c *Client) SendDocument(ctx context.Context, chatID int64, document []byte, filename, caption string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("write caption field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("create document part: %w", err)
	}
	if _, err := part.Write(document); err != nil {
		return fmt.Errorf("write document bytes: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendDocument", &buf)
	if err != nil {
		return fmt.Errorf("build sendDocument request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	if !api.OK {
		return fmt.Errorf("%s rejected: %s", req.URL.Path, api.Description)
	}
	return nil
}
