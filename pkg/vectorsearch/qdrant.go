package vectorsearch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

const defaultQdrantPort = 6334

type QdrantConfig struct {
	URL               string
	APIKey            string
	ProductCollection string
	PolicyCollection  string
}

// QdrantSearcher embeds the query and searches one collection per document type.
// Points carry doc_id and text_content in their payload.
type QdrantSearcher struct {
	client      *qdrant.Client
	embedder    Embedder
	collections map[DocType]string
}

func NewQdrantSearcher(cfg QdrantConfig, embedder Embedder) (*QdrantSearcher, error) {
	if embedder == nil {
		return nil, errors.New("qdrant searcher requires an embedder")
	}
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantSearcher{
		client:   client,
		embedder: embedder,
		collections: map[DocType]string{
			DocProduct: cfg.ProductCollection,
			DocPolicy:  cfg.PolicyCollection,
		},
	}, nil
}

func (s *QdrantSearcher) Search(ctx context.Context, query string, docType DocType, topK int) ([]Hit, error) {
	collection, ok := s.collections[docType]
	if !ok || collection == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocType, docType)
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, point := range points {
		hit := Hit{Score: float64(point.Score)}
		if point.Payload != nil {
			if v, ok := point.Payload["doc_id"]; ok {
				hit.DocID = v.GetStringValue()
			}
			if v, ok := point.Payload["text_content"]; ok {
				hit.Text = v.GetStringValue()
			}
		}
		if hit.DocID == "" && point.Id != nil {
			if id := point.Id.GetUuid(); id != "" {
				hit.DocID = id
			} else if num := point.Id.GetNum(); num != 0 {
				hit.DocID = strconv.FormatUint(num, 10)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *QdrantSearcher) Close() error {
	return s.client.Close()
}

func parseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, false, errors.New("qdrant url is required")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	port = defaultQdrantPort
	if u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port: %w", err)
		}
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}
