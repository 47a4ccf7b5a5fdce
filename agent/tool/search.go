package tool

import (
	"context"
	"net/http"
	"net/url"
	"sort"

	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
)

// LookupProducts fetches full records for the scored ids. Records whose id is
// not among the scores are dropped; survivors carry similarity_score and are
// sorted by it, highest first.
func LookupProducts(ctx context.Context, client *backend.Client, scores map[string]float64) ([]map[string]any, error) {
	if len(scores) == 0 {
		return []map[string]any{}, nil
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	env, err := client.Envelope(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   "/product/get_products_detail_for_search",
		Query:  url.Values{"product_ids": ids},
	})
	if err != nil {
		return nil, err
	}
	if err := env.Expect(backend.CodeOK); err != nil {
		return nil, err
	}

	var res struct {
		Data []map[string]any `json:"data"`
	}
	if err := env.DecodeResult(&res); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(res.Data))
	for _, item := range res.Data {
		id := ProductID(item)
		score, ok := scores[id]
		if id == "" || !ok {
			continue
		}
		item["similarity_score"] = score
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i]["similarity_score"].(float64) > out[j]["similarity_score"].(float64)
	})
	return out, nil
}

// ProductID reads product.id from a product record.
func ProductID(item map[string]any) string {
	product, ok := item["product"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := product["id"].(string)
	return id
}
