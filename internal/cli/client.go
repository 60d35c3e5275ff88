// Package cli implements the chatctl commands.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/capitalize-ai/ragchat/internal/model"
)

// Client calls the ragchat HTTP API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient creates an API client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{},
	}
}

// APIError is a non-2xx JSON response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// StreamError is an error event received on the chat stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return e.Message
}

// Ask posts a chat request and passes every event before end to handle.
// An error event is returned as a *StreamError.
func (c *Client) Ask(ctx context.Context, req *model.ChatRequest, handle func(Event) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/chat/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := NewDecoder(resp.Body)
	var streamErr error
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return errors.New("stream closed without end event")
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}

		switch ev.Name {
		case model.EventEnd:
			return streamErr
		case model.EventError:
			msg, err := ev.Text()
			if err != nil {
				return err
			}
			streamErr = &StreamError{Message: msg}
		default:
			if err := handle(ev); err != nil {
				return err
			}
		}
	}
}

// Chats lists the caller's conversations.
func (c *Client) Chats(ctx context.Context) ([]model.ChatListItem, error) {
	var items []model.ChatListItem
	return items, c.getJSON(ctx, "/api/v1/chats", &items)
}

// History returns the turns of one conversation.
func (c *Client) History(ctx context.Context, chatID string) ([]model.Turn, error) {
	var turns []model.Turn
	return turns, c.getJSON(ctx, "/api/v1/chats/"+url.PathEscape(chatID), &turns)
}

// Delete removes one conversation.
func (c *Client) Delete(ctx context.Context, chatID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/v1/chats/"+url.PathEscape(chatID), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Search finds conversations whose title or turns contain query.
func (c *Client) Search(ctx context.Context, query string, limit, offset int) (*model.SearchResponse, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var resp model.SearchResponse
	if err := c.getJSON(ctx, "/api/v1/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AttachmentURL asks for a short-lived download URL for a stored attachment.
func (c *Client) AttachmentURL(ctx context.Context, key string) (*model.DownloadResponse, error) {
	body, err := json.Marshal(model.DownloadRequest{S3Key: key})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/uploads/url", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out model.DownloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Models returns the default and routable model keys.
func (c *Client) Models(ctx context.Context) (string, []string, error) {
	var list struct {
		Default string   `json:"default"`
		Models  []string `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/v1/models", &list); err != nil {
		return "", nil, err
	}
	return list.Default, list.Models, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: payload.Error}
	}
	return resp, nil
}
