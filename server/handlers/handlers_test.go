package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/coral-p2025/coral/chat"
	"github.com/coral-p2025/coral/config"
	"github.com/coral-p2025/coral/server/metrics"
	"github.com/coral-p2025/coral/server/middleware"
	"github.com/coral-p2025/coral/server/mocks"
	"github.com/coral-p2025/coral/server/processing"
	"github.com/coral-p2025/coral/server/provider"
	"github.com/coral-p2025/coral/server/sandbox"
	"github.com/coral-p2025/coral/server/validation"
)

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func newChatRoute(t *testing.T, client chat.Client) http.Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	p, err := processing.NewProcessor(client, config.DefaultConfig().Bot, logger, metrics.NewMetrics())
	require.NoError(t, err)

	v := validation.New(nil, 0, logger)
	return middleware.RequestID(v.ValidateChat(NewChatHandler(p, logger)))
}

func TestChatHandler(t *testing.T) {
	client := mocks.NewStaticChatClient("Schedule F reclassifies civil servants.", "gen-42")
	handler := newChatRoute(t, client)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/v1/chat", `{"message":"what is schedule F?","temperature":0.7,"tools":[]}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var result chat.ReplyResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "Schedule F reclassifies civil servants.", result.BotReplyText)
	assert.Equal(t, "gen-42", result.ResponseID)
	assert.Empty(t, result.ErrorMessage)

	sent := client.LastRequest()
	assert.Equal(t, "what is schedule F?", sent.Message)
	require.NotNil(t, sent.Temperature)
	assert.Equal(t, 0.7, *sent.Temperature)
	assert.Empty(t, sent.Tools, "explicit empty tools disable the defaults")
}

func TestChatHandlerMarkdownCitations(t *testing.T) {
	client := mocks.NewMockChatClient(func(ctx context.Context, req chat.Request) (*chat.Response, error) {
		return &chat.Response{
			Text:      "See the chapter.",
			Citations: []chat.Citation{{DocumentIDs: []string{"d1"}}},
			Documents: []chat.Document{{ID: "d1", Title: "Chapter 3", URL: "https://example.org/3"}},
		}, nil
	})
	handler := newChatRoute(t, client)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/v1/chat", `{"message":"which chapter?"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var result chat.ReplyResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "See the chapter.\n\nSources:\n1. [Chapter 3](https://example.org/3)\n", result.BotReplyText)
}

func TestChatHandlerDefaultTools(t *testing.T) {
	client := mocks.NewStaticChatClient("ok", "")
	handler := newChatRoute(t, client)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/v1/chat", `{"message":"hi"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	sent := client.LastRequest()
	require.Len(t, sent.Tools, 1)
	assert.Equal(t, chat.Project2025ToolName, sent.Tools[0].Name)
}

func TestChatHandlerFailure(t *testing.T) {
	client := mocks.NewFailingChatClient(&chat.APIError{StatusCode: 429, Message: "rate limited"})
	handler := newChatRoute(t, client)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/v1/chat", `{"message":"hi"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, map[string]interface{}{
		"current_bot_reply": "",
		"response_id":       "",
		"error_message":     "rate limited",
	}, body)
}

func TestChatHandlerWithoutValidation(t *testing.T) {
	h := NewChatHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postJSON("/v1/chat", `{"message":"hi"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewAndBlobs(t *testing.T) {
	store := sandbox.NewMemoryStore("/v1/blobs", nil)
	transformer := sandbox.NewTransformer(store, "", zaptest.NewLogger(t), nil)
	v := validation.New(nil, 0, zaptest.NewLogger(t))
	blobs := NewBlobHandler(store)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.With(v.ValidatePreview).Post("/v1/preview", NewPreviewHandler(transformer).ServeHTTP)
	r.Get("/v1/blobs/{id}", blobs.Get)
	r.Delete("/v1/blobs/{id}", blobs.Delete)

	body, _ := json.Marshal(map[string]string{
		"content": "Here you go:\n```html\n<img src=\"a.png\">\n```\n```css\nimg { width: 10px; }\n```",
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, postJSON("/v1/preview", string(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var preview PreviewResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&preview))
	assert.True(t, strings.HasPrefix(preview.Content, "Here you go:\n<iframe data-src=\"/v1/blobs/"))
	require.Equal(t, 1, store.Len())

	start := strings.Index(preview.Content, `data-src="`) + len(`data-src="`)
	address := preview.Content[start : start+strings.Index(preview.Content[start:], `"`)]

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, address, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "sandbox allow-scripts")
	assert.Contains(t, rec.Body.String(), "<style>img { width: 10px; }\n</style>")
	assert.Contains(t, rec.Body.String(), "onImageError(this)")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, address, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, store.Len())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, address, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, address, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewWithoutCodeBlock(t *testing.T) {
	store := sandbox.NewMemoryStore("/v1/blobs", nil)
	v := validation.New(nil, 0, zaptest.NewLogger(t))
	handler := v.ValidatePreview(NewPreviewHandler(sandbox.NewTransformer(store, "", nil, nil)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/v1/preview", `{"content":"no code here"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"content":"no code here"}`, rec.Body.String())
	assert.Equal(t, 0, store.Len())
}

type fakeHealth struct {
	healthy bool
}

func (f fakeHealth) Health() map[string]provider.HealthStatus {
	return map[string]provider.HealthStatus{"toolkit": {Healthy: f.healthy, BreakerState: "closed"}}
}

func (f fakeHealth) Healthy() bool { return f.healthy }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(fakeHealth{healthy: true}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"toolkit"`)

	rec = httptest.NewRecorder()
	NewHealthHandler(fakeHealth{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unavailable"`)
}

var _ Replier = (*processing.Processor)(nil)
