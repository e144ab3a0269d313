package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(&Config{
		BaseURL:        srv.URL,
		AccessToken:    "test-token",
		PageSize:       2,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		RateLimitDelay: time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}, discardLogger())
}

func TestGetItem(t *testing.T) {
	var gotToken string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Access-Token")
		assert.Equal(t, "/tenants/tenant-1/items/item-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Item{ID: "item-1", Title: "Mug"})
	}))

	item, err := client.GetItem(context.Background(), "tenant-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, "Mug", item.Title)
	assert.Equal(t, "test-token", gotToken)
}

func TestGetItemNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetItem(context.Background(), "tenant-1", "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestGetItemRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(Item{ID: "item-1"})
	}))

	item, err := client.GetItem(context.Background(), "tenant-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetItemExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.GetItem(context.Background(), "tenant-1", "item-1")
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimitDoesNotConsumeRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(Item{ID: "item-1"})
	}))
	t.Cleanup(srv.Close)

	// A single-attempt budget still survives repeated 429s
	client := NewClient(&Config{
		BaseURL:        srv.URL,
		AccessToken:    "test-token",
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
		RateLimitDelay: time.Millisecond,
	}, discardLogger())

	item, err := client.GetItem(context.Background(), "tenant-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUnauthorizedFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.GetItem(context.Background(), "tenant-1", "item-1")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load(), "auth failures must not be retried")
}

func TestFetchPagePassesCursor(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenants/tenant-1/items", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		_ = json.NewEncoder(w).Encode(pageResponse{
			Items:      []Item{{ID: "item-3"}, {ID: "item-4"}},
			NextCursor: "def",
			HasMore:    true,
		})
	}))

	page, err := client.FetchPage(context.Background(), "tenant-1", "abc")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "def", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestFetchPageFirstPageHasNoCursor(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("cursor"))
		_ = json.NewEncoder(w).Encode(pageResponse{Items: []Item{{ID: "item-1"}}})
	}))

	page, err := client.FetchPage(context.Background(), "tenant-1", "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
}

func TestUpdateTitleDescriptionSendsGroup(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.UpdateTitleDescription(context.Background(), "tenant-1", "item-1", "New Title", "Current description")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"title":       "New Title",
		"description": "Current description",
	}, got)
}

func TestUpdateImageAltText(t *testing.T) {
	var gotPath string
	var got map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.UpdateImageAltText(context.Background(), "tenant-1", "item-1", "img-1", "A mug on a table")
	require.NoError(t, err)
	assert.Equal(t, "/tenants/tenant-1/items/item-1/images/img-1", gotPath)
	assert.Equal(t, map[string]string{"alt_text": "A mug on a table"}, got)
}

func TestUpdateSchemaMarkup(t *testing.T) {
	var gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	err := client.UpdateSchemaMarkup(context.Background(), "tenant-1", "item-1", `{"@type":"Product"}`)
	require.NoError(t, err)
	assert.Equal(t, "/tenants/tenant-1/items/item-1/schema", gotPath)
}
