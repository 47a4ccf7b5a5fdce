package vectorsearch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
)

// HTTPSearcher calls a search service with POST /search.
type HTTPSearcher struct {
	client *backend.Client
}

func NewHTTPSearcher(baseURL string, timeout time.Duration, opts ...backend.ClientOption) (*HTTPSearcher, error) {
	client, err := backend.NewClient(baseURL, timeout, opts...)
	if err != nil {
		return nil, fmt.Errorf("vector search client: %w", err)
	}
	return &HTTPSearcher{client: client}, nil
}

type searchRequest struct {
	QueryText string  `json:"query_text"`
	TopK      int     `json:"top_k"`
	DocType   DocType `json:"doc_type"`
}

type searchResponse struct {
	Results []Hit `json:"results"`
}

func (s *HTTPSearcher) Search(ctx context.Context, query string, docType DocType, topK int) ([]Hit, error) {
	if docType != DocProduct && docType != DocPolicy {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocType, docType)
	}

	var out searchResponse
	if err := s.client.Do(ctx, backend.Request{
		Method: http.MethodPost,
		Path:   "/search",
		Body:   searchRequest{QueryText: query, TopK: topK, DocType: docType},
	}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (s *HTTPSearcher) Close() error {
	return nil
}
