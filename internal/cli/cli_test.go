package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ragchat/internal/model"
)

func TestDecoder(t *testing.T) {
	stream := "data: {\"type\":\"message\",\"data\":\"Hel\"}\n\n" +
		"data: {\"type\":\"message\",\"data\":\"lo\"}\n\n" +
		"event: info\ndata: \"switching\"\n\n" +
		": keepalive\n\n" +
		"event: end\r\ndata: \"Stream ended\"\r\n\r\n"

	dec := NewDecoder(strings.NewReader(stream))

	var got []Event
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, ev)
	}

	require.Len(t, got, 5)
	text, err := got[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "Hel", text)
	assert.Equal(t, "info", got[2].Name)
	text, err = got[2].Text()
	require.NoError(t, err)
	assert.Equal(t, "switching", text)
	assert.Equal(t, "end", got[4].Name)
}

func TestDecoder_Truncated(t *testing.T) {
	dec := NewDecoder(strings.NewReader("event: end\ndata: \"x\""))
	_, err := dec.Next()
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func sseServer(t *testing.T, body string, seen *model.ChatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/stream", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, body)
	}))
}

func TestClientAsk(t *testing.T) {
	var seen model.ChatRequest
	srv := sseServer(t,
		"data: {\"type\":\"message\",\"data\":\"Hi\"}\n\n"+
			"event: newChat\ndata: {\"id\":\"c1\",\"title\":\"hello\",\"messages\":[]}\n\n"+
			"event: end\ndata: \"Stream ended\"\n\n", &seen)
	defer srv.Close()

	var names []string
	err := NewClient(srv.URL, "tok").Ask(context.Background(), &model.ChatRequest{
		UserPrompt: "hello", UserMessageID: "u", AssistantMessageID: "a",
	}, func(ev Event) error {
		names = append(names, ev.Name)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"message", "newChat"}, names)
	assert.Equal(t, "hello", seen.UserPrompt)
}

func TestClientAsk_ErrorEvent(t *testing.T) {
	srv := sseServer(t,
		"event: error\ndata: \"Unauthorized\"\n\nevent: end\ndata: \"Stream ended due to error\"\n\n", nil)
	defer srv.Close()

	err := NewClient(srv.URL, "tok").Ask(context.Background(), &model.ChatRequest{}, func(Event) error { return nil })

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "Unauthorized", streamErr.Message)
}

func TestClientAsk_MissingEnd(t *testing.T) {
	srv := sseServer(t, "data: {\"type\":\"message\",\"data\":\"Hi\"}\n\n", nil)
	defer srv.Close()

	err := NewClient(srv.URL, "tok").Ask(context.Background(), &model.ChatRequest{}, func(Event) error { return nil })
	assert.ErrorContains(t, err, "without end event")
}

func TestAskCommand(t *testing.T) {
	var seen model.ChatRequest
	srv := sseServer(t,
		"data: {\"type\":\"message\",\"data\":\"Hel\"}\n\n"+
			"data: {\"type\":\"message\",\"data\":\"lo\"}\n\n"+
			"event: warning\ndata: \"Failed to save chat history, but you can continue the conversation.\"\n\n"+
			"event: end\ndata: \"Stream ended\"\n\n", &seen)
	defer srv.Close()

	var out, errOut bytes.Buffer
	root := NewRootCommand(&out, &errOut)
	root.SetArgs([]string{"ask", "--server", srv.URL, "--token", "tok", "--mode", "general", "what", "is", "this"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "Hello\n", out.String())
	assert.Contains(t, errOut.String(), "warning: Failed to save chat history")
	assert.Equal(t, "what is this", seen.UserPrompt)
	assert.Equal(t, model.ModeGeneral, seen.Mode)
	assert.NotEmpty(t, seen.UserMessageID)
	assert.NotEqual(t, seen.UserMessageID, seen.AssistantMessageID)
}

func TestChatsAndDeleteCommands(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/chats":
			json.NewEncoder(w).Encode([]model.ChatListItem{{ID: "c1", Title: "first"}})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/chats/c1":
			deleted = "c1"
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"chat not found"}`)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	root := NewRootCommand(&out, io.Discard)
	root.SetArgs([]string{"chats", "--server", srv.URL})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "c1\tfirst\n", out.String())

	root = NewRootCommand(io.Discard, io.Discard)
	root.SetArgs([]string{"delete", "--server", srv.URL, "c1"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "c1", deleted)

	root = NewRootCommand(io.Discard, io.Discard)
	root.SetArgs([]string{"delete", "--server", srv.URL, "missing"})
	err := root.ExecuteContext(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "chat not found", apiErr.Message)
}

func TestSearchCommand(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/search", r.URL.Path)
		query = r.URL.RawQuery
		json.NewEncoder(w).Encode(model.SearchResponse{
			Results: []model.SearchResult{
				{ChatID: "c1", Title: "Tax questions", MatchedContent: "Tax questions", MatchType: model.MatchTitle, Score: 0.9},
			},
			TotalCount: 3,
			Query:      "tax rules",
			Limit:      1,
			Offset:     2,
		})
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	root := NewRootCommand(&out, &errOut)
	root.SetArgs([]string{"search", "--server", srv.URL, "--limit", "1", "--offset", "2", "tax", "rules"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Equal(t, "limit=1&offset=2&q=tax+rules", query)
	assert.Equal(t, "c1\ttitle\tTax questions\tTax questions\n", out.String())
	assert.Equal(t, "1 of 3 results\n", errOut.String())
}

func TestAttachmentURLCommand(t *testing.T) {
	var sent model.DownloadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/uploads/url", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		if !strings.HasPrefix(sent.S3Key, "uploads/u1/") {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error":"file does not belong to this user"}`)
			return
		}
		json.NewEncoder(w).Encode(model.DownloadResponse{
			Method:       "presignedUrl",
			PresignedURL: "https://bucket.example/" + sent.S3Key + "?sig=get",
			ExpiresIn:    900,
			ExpiresAt:    1700000900000,
			S3Key:        sent.S3Key,
		})
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	root := NewRootCommand(&out, &errOut)
	root.SetArgs([]string{"attachment-url", "--server", srv.URL, "uploads/u1/a.png"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, "https://bucket.example/uploads/u1/a.png?sig=get\n", out.String())
	assert.Equal(t, "expires 2023-11-14T22:28:20Z\n", errOut.String())

	root = NewRootCommand(io.Discard, io.Discard)
	root.SetArgs([]string{"attachment-url", "--server", srv.URL, "uploads/u2/a.png"})
	err := root.ExecuteContext(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}
