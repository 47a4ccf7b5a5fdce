package vectorsearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSearcherPostsQuery(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body searchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.QueryText != "laptop" || body.TopK != 5 || body.DocType != DocProduct {
			t.Errorf("unexpected body: %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{
			map[string]any{"doc_id": "p1", "text_content": "Laptop A", "score": 0.8},
		}})
	}))
	defer server.Close()

	s, err := NewHTTPSearcher(server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPSearcher() error = %v", err)
	}
	hits, err := s.Search(context.Background(), "laptop", DocProduct, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].DocID != "p1" || hits[0].Score != 0.8 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestHTTPSearcherRejectsUnknownDocType(t *testing.T) {
	t.Parallel()

	s, err := NewHTTPSearcher("http://localhost:1", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPSearcher() error = %v", err)
	}
	if _, err := s.Search(context.Background(), "q", DocType("faq"), 5); !errors.Is(err, ErrUnknownDocType) {
		t.Fatalf("Search() error = %v, want ErrUnknownDocType", err)
	}
}

func TestFilterByScore(t *testing.T) {
	t.Parallel()

	hits := FilterByScore([]Hit{
		{DocID: "low", Score: 0.2},
		{DocID: "a", Score: 0.5},
		{DocID: "b", Score: 0.9},
		{DocID: "", Score: 0.99},
		{DocID: "edge", Score: 0.45},
	}, 0.45)

	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %+v", hits)
	}
	if hits[0].DocID != "b" || hits[1].DocID != "a" || hits[2].DocID != "edge" {
		t.Fatalf("unexpected order: %+v", hits)
	}
}

func TestParseQdrantURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw    string
		host   string
		port   int
		useTLS bool
	}{
		{raw: "localhost", host: "localhost", port: 6334, useTLS: true},
		{raw: "http://qdrant:6333", host: "qdrant", port: 6333, useTLS: false},
		{raw: "https://x.cloud.qdrant.io", host: "x.cloud.qdrant.io", port: 6334, useTLS: true},
	}
	for _, tt := range tests {
		host, port, useTLS, err := parseQdrantURL(tt.raw)
		if err != nil {
			t.Fatalf("parseQdrantURL(%q) error = %v", tt.raw, err)
		}
		if host != tt.host || port != tt.port || useTLS != tt.useTLS {
			t.Fatalf("parseQdrantURL(%q) = %s %d %v", tt.raw, host, port, useTLS)
		}
	}

	if _, _, _, err := parseQdrantURL(" "); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Driver: "faiss"}, nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New(Config{Driver: DriverQdrant, URL: "localhost"}, nil); err == nil {
		t.Fatal("expected error without embedder")
	}
}
