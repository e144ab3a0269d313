package generator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimly/catalog-optimizer/internal/catalog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingServer captures every generation request it receives
type recordingServer struct {
	mu       sync.Mutex
	requests []generateRequest
	handle   func(req generateRequest, w http.ResponseWriter)
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	s.handle(req, w)
}

func (s *recordingServer) recorded() []generateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]generateRequest(nil), s.requests...)
}

func writeValue(w http.ResponseWriter, value string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(generateResponse{Value: value})
}

func newTestClient(t *testing.T, handle func(req generateRequest, w http.ResponseWriter)) (*Client, *recordingServer) {
	t.Helper()

	rec := &recordingServer{handle: handle}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	client := NewClient(&Config{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		TitleBounds:   Bounds{MinLength: 10, MaxLength: 60},
		DescBounds:    Bounds{MinLength: 10, MaxLength: 160},
		AltTextBounds: Bounds{MinLength: 10, MaxLength: 125},
	}, discardLogger())

	return client, rec
}

func TestGenerateTitleNormalizesResult(t *testing.T) {
	client, rec := newTestClient(t, func(req generateRequest, w http.ResponseWriter) {
		writeValue(w, `"**Handcrafted Ceramic Mug for Slow Mornings**"`)
	})

	item := &catalog.Item{ID: "item-1", Description: "A mug", Tags: []string{"ceramic"}}
	value, err := client.GenerateTitle(context.Background(), item, "warm", "keep it short")
	require.NoError(t, err)
	assert.Equal(t, "Handcrafted Ceramic Mug for Slow Mornings", value)

	requests := rec.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, "title", requests[0].Field)
	assert.Equal(t, "text", requests[0].Strategy)
	assert.Equal(t, "warm", requests[0].Tone)
	assert.Equal(t, "keep it short", requests[0].Instructions)
}

func TestGenerateTitleTooShortResultIsSkipped(t *testing.T) {
	client, _ := newTestClient(t, func(req generateRequest, w http.ResponseWriter) {
		writeValue(w, "Tiny")
	})

	value, err := client.GenerateTitle(context.Background(), &catalog.Item{ID: "item-1"}, "", "")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestGenerateTitleServerError(t *testing.T) {
	client, _ := newTestClient(t, func(req generateRequest, w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GenerateTitle(context.Background(), &catalog.Item{ID: "item-1"}, "", "")
	assert.Error(t, err)
}

func TestGenerateAltTextVisionStrategy(t *testing.T) {
	client, rec := newTestClient(t, func(req generateRequest, w http.ResponseWriter) {
		writeValue(w, "A glazed ceramic mug on a wooden table")
	})

	item := &catalog.Item{ID: "item-1", Title: "Mug"}
	image := &catalog.Image{ID: "img-1", Src: "https://cdn.example.com/mug.jpg"}

	value, err := client.GenerateAltText(context.Background(), item, image, "", "")
	require.NoError(t, err)
	assert.Equal(t, "A glazed ceramic mug on a wooden table", value)

	requests := rec.recorded()
	require.Len(t, requests, 1)
	assert.Equal(t, "alt_text", requests[0].Field)
	assert.Equal(t, "vision", requests[0].Strategy)
	assert.Equal(t, "https://cdn.example.com/mug.jpg", requests[0].ImageURL)
}

func TestGenerateAltTextFallsBackToTextOnVisionError(t *testing.T) {
	client, rec := newTestClient(t, func(req generateRequest, w http.ResponseWriter) {
		if req.Strategy == "vision" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeValue(w, "A glazed ceramic mug on a wooden table")
	})

	item := &catalog.Item{ID: "item-1", Title: "Mug"}
	image := &catalog.Image{ID: "img-1", Src: "https://cdn.example.com/mug.jpg"}

	value, err := client.GenerateAltText(context.Background(), item, image, "", "")
	require.NoError(t, err)
	assert.Equal(t, "A glazed ceramic mug on a wooden table", value)

	requests := rec.recorded()
	require.Len(t, requests, 2)
	assert.Equal(t, "vision", requests[0].Strategy)
	assert.Equal(t, "text", requests[1].Strategy)
}

func TestGenerateAltTextFallsBackToTextOnEmptyVisionResult(t *testing.T) {
	client, rec := newTestClient(t, func(req generateRequest, w http.ResponseWriter) {
		if req.Strategy == "vision" {
			writeValue(w, "")
			return
		}
		writeValue(w, "A glazed ceramic mug on a wooden table")
	})

	item := &catalog.Item{ID: "item-1", Title: "Mug"}
	image := &catalog.Image{ID: "img-1", Src: "https://cdn.example.com/mug.jpg"}

	value, err := client.GenerateAltText(context.Background(), item, image, "", "")
	require.NoError(t, err)
	assert.Equal(t, "A glazed ceramic mug on a wooden table", value)
	assert.Len(t, rec.recorded(), 2)
}

func TestGenerateSendsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeValue(w, "A perfectly ordinary generated description value here")
	}))
	t.Cleanup(srv.Close)

	client := NewClient(&Config{
		BaseURL:    srv.URL,
		APIKey:     "secret-key",
		DescBounds: Bounds{MinLength: 10, MaxLength: 160},
	}, discardLogger())

	_, err := client.GenerateDescription(context.Background(), &catalog.Item{ID: "item-1"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", gotAuth)
}
