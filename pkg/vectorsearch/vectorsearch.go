// Package vectorsearch finds product and policy documents similar to a query.
package vectorsearch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type DocType string

const (
	DocProduct DocType = "product"
	DocPolicy  DocType = "policy"
)

const (
	DriverHTTP   = "http"
	DriverQdrant = "qdrant"
)

var ErrUnknownDocType = errors.New("unknown document type")

// Hit is one scored document. Higher scores are more similar.
type Hit struct {
	DocID string  `json:"doc_id"`
	Text  string  `json:"text_content"`
	Score float64 `json:"score"`
}

type Searcher interface {
	Search(ctx context.Context, query string, docType DocType, topK int) ([]Hit, error)
	Close() error
}

// Embedder turns query text into a vector for the qdrant driver.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	Driver            string        `envconfig:"DRIVER" split_words:"true" default:"http"`
	URL               string        `envconfig:"URL" split_words:"true" default:"http://localhost:8000"`
	TopK              int           `envconfig:"TOP_K" split_words:"true" default:"5"`
	MinScore          float64       `envconfig:"MIN_SCORE" split_words:"true" default:"0.45"`
	Timeout           time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	QdrantAPIKey      string        `envconfig:"QDRANT_API_KEY" split_words:"true"`
	ProductCollection string        `envconfig:"PRODUCT_COLLECTION" split_words:"true" default:"products"`
	PolicyCollection  string        `envconfig:"POLICY_COLLECTION" split_words:"true" default:"policies"`
	EmbeddingModel    string        `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
}

// New builds the configured driver. embedder is only used by qdrant.
func New(cfg Config, embedder Embedder) (Searcher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverHTTP:
		return NewHTTPSearcher(cfg.URL, cfg.Timeout)
	case DriverQdrant:
		return NewQdrantSearcher(QdrantConfig{
			URL:               cfg.URL,
			APIKey:            cfg.QdrantAPIKey,
			ProductCollection: cfg.ProductCollection,
			PolicyCollection:  cfg.PolicyCollection,
		}, embedder)
	default:
		return nil, fmt.Errorf("unsupported vector search driver %q", cfg.Driver)
	}
}

// FilterByScore drops hits below minScore and orders the rest by score, highest first.
func FilterByScore(hits []Hit, minScore float64) []Hit {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score < minScore || strings.TrimSpace(h.DocID) == "" {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
