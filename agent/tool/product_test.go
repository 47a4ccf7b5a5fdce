package tool

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestGetProductDetailGroupsReviews(t *testing.T) {
	t.Parallel()

	clients := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/product/getdetail/tv-box":
			writeEnvelope(t, w, 200, map[string]any{"data": map[string]any{
				"brand":    map[string]any{"name": "Tanix"},
				"category": map[string]any{"name": "Điện Tử"},
				"option":   []any{map[string]any{"option_name": "RAM", "values": []any{map[string]any{"value": "2G"}}}},
				"product":  map[string]any{"id": "p1", "name": "TV Box", "min_price": 356960, "max_price": 453000},
				"sku":      []any{map[string]any{"sku_name": "H96", "price": 356960, "quantity": 3}},
			}})
		case "/comments":
			if r.URL.Query().Get("product_id") != "p1" || r.URL.Query().Get("page_size") != "20" {
				t.Errorf("unexpected comment query: %v", r.URL.Query())
			}
			writeEnvelope(t, w, 200, map[string]any{
				"data": []any{
					map[string]any{"rating": 5, "content": "Tốt"},
					map[string]any{"rating": 5, "content": "Rõ nét"},
					map[string]any{"rating": 1, "content": "  "},
					map[string]any{"rating": 2, "content": "Kém"},
					map[string]any{"rating": 9, "content": "bad rating"},
				},
				"limit":         20,
				"totalElements": 5,
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	out, err := GetProductDetail(context.Background(), clients.Products, clients.Comments, "tok", "tv-box")
	if err != nil {
		t.Fatalf("GetProductDetail() error = %v", err)
	}
	if out.Product.Brand != "Tanix" || len(out.Product.Options) != 1 || out.Product.Options[0].Values[0] != "2G" {
		t.Fatalf("unexpected summary: %+v", out.Product)
	}
	if len(out.Comments.Data) != 2 {
		t.Fatalf("expected 2 non-empty buckets, got %+v", out.Comments.Data)
	}
	if out.Comments.Data[0].Star != 2 || out.Comments.Data[1].Star != 5 || out.Comments.Data[1].Count != 2 {
		t.Fatalf("unexpected buckets: %+v", out.Comments.Data)
	}
	if out.TotalComments != 5 {
		t.Fatalf("TotalComments = %d", out.TotalComments)
	}
}

func TestGetProductDetailWithoutIDSkipsReviews(t *testing.T) {
	t.Parallel()

	clients := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/comments" {
			t.Error("comments must not be fetched")
		}
		writeEnvelope(t, w, 200, map[string]any{"data": map[string]any{"product": map[string]any{"name": "x"}}})
	})

	out, err := GetProductDetail(context.Background(), clients.Products, clients.Comments, "tok", "x")
	if err != nil {
		t.Fatalf("GetProductDetail() error = %v", err)
	}
	if out.Comments.Data == nil || len(out.Comments.Data) != 0 || out.Comments.TotalElements != 0 {
		t.Fatalf("expected empty aggregate, got %+v", out.Comments)
	}
}

func TestGetProductDetailCommentEnvelopeFailureDegrades(t *testing.T) {
	t.Parallel()

	clients := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/comments" {
			writeEnvelope(t, w, 500, nil)
			return
		}
		writeEnvelope(t, w, 200, map[string]any{"data": map[string]any{"product": map[string]any{"id": "p1"}}})
	})

	out, err := GetProductDetail(context.Background(), clients.Products, clients.Comments, "tok", "k")
	if err != nil {
		t.Fatalf("GetProductDetail() error = %v", err)
	}
	if len(out.Comments.Data) != 0 {
		t.Fatalf("expected empty aggregate, got %+v", out.Comments)
	}
}

func TestGetProductDetailNotFound(t *testing.T) {
	t.Parallel()

	clients := newTestClients(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := GetProductDetail(context.Background(), clients.Products, clients.Comments, "tok", "missing")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("error = %v, want ErrProductNotFound", err)
	}
}
