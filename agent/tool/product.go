package tool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
)

const commentPageSize = 20

var ErrProductNotFound = errors.New("product not found")

type ProductDetail struct {
	Product       ProductSummary   `json:"product"`
	Comments      CommentAggregate `json:"comments"`
	TotalComments int              `json:"total_comments"`
	Message       string           `json:"message,omitempty"`
}

type ProductSummary struct {
	Brand    string          `json:"brand"`
	Category string          `json:"category"`
	Options  []ProductOption `json:"options"`
	Product  ProductInfo     `json:"product"`
	SKU      []ProductSKU    `json:"sku"`
}

type ProductOption struct {
	Name   string   `json:"option_name"`
	Values []string `json:"values"`
}

type ProductInfo struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Key              string  `json:"key"`
	Description      string  `json:"description"`
	ShortDescription string  `json:"short_description"`
	Image            string  `json:"image"`
	MinPrice         float64 `json:"min_price"`
	MaxPrice         float64 `json:"max_price"`
}

type ProductSKU struct {
	Name     string  `json:"sku_name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// RatingBucket groups the review texts of one star rating.
type RatingBucket struct {
	Star     int      `json:"star"`
	Count    int      `json:"count"`
	Comments []string `json:"comments"`
}

type CommentAggregate struct {
	Data          []RatingBucket `json:"data"`
	Limit         int            `json:"limit"`
	TotalElements int            `json:"totalElements"`
}

func emptyComments() CommentAggregate {
	return CommentAggregate{Data: []RatingBucket{}}
}

// raw backend shapes
type productDetailResult struct {
	Data *struct {
		Brand struct {
			Name string `json:"name"`
		} `json:"brand"`
		Category struct {
			Name string `json:"name"`
		} `json:"category"`
		Option   []struct {
			OptionName string `json:"option_name"`
			Values     []struct {
				Value string `json:"value"`
			} `json:"values"`
		} `json:"option"`
		Product ProductInfo  `json:"product"`
		SKU     []ProductSKU `json:"sku"`
	} `json:"data"`
}

type commentPage struct {
	Data []struct {
		Rating  int    `json:"rating"`
		Content string `json:"content"`
	} `json:"data"`
	Limit         int `json:"limit"`
	TotalElements int `json:"totalElements"`
}

// GetProductDetail fetches the product by key, then its reviews by the
// resolved internal id.
func GetProductDetail(ctx context.Context, products, comments *backend.Client, token, key string) (ProductDetail, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return ProductDetail{}, fmt.Errorf("%w: product key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(token) == "" {
		return ProductDetail{}, contractx.ErrUnauthorized
	}

	summary, err := fetchProductSummary(ctx, products, token, key)
	if err != nil {
		return ProductDetail{}, err
	}

	if summary.Product.ID == "" {
		return ProductDetail{
			Product:  summary,
			Comments: emptyComments(),
			Message:  "Sản phẩm không có ID, không thể lấy comments",
		}, nil
	}

	agg, err := fetchComments(ctx, comments, token, summary.Product.ID)
	if err != nil {
		return ProductDetail{}, err
	}
	return ProductDetail{
		Product:       summary,
		Comments:      agg,
		TotalComments: agg.TotalElements,
	}, nil
}

func fetchProductSummary(ctx context.Context, client *backend.Client, token, key string) (ProductSummary, error) {
	env, err := client.Envelope(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   "/product/getdetail/" + url.PathEscape(key),
		Token:  token,
	})
	if err != nil {
		var statusErr *backend.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return ProductSummary{}, fmt.Errorf("%w: key=%s", ErrProductNotFound, key)
		}
		return ProductSummary{}, err
	}
	if err := env.Expect(backend.CodeOK); err != nil {
		return ProductSummary{}, err
	}

	var res productDetailResult
	if err := env.DecodeResult(&res); err != nil {
		return ProductSummary{}, err
	}
	if res.Data == nil {
		return ProductSummary{}, fmt.Errorf("%w: key=%s", ErrProductNotFound, key)
	}

	raw := res.Data
	out := ProductSummary{
		Brand:    raw.Brand.Name,
		Category: raw.Category.Name,
		Options:  make([]ProductOption, 0, len(raw.Option)),
		Product:  raw.Product,
		SKU:      raw.SKU,
	}
	for _, opt := range raw.Option {
		values := make([]string, 0, len(opt.Values))
		for _, v := range opt.Values {
			values = append(values, v.Value)
		}
		out.Options = append(out.Options, ProductOption{Name: opt.OptionName, Values: values})
	}
	if out.SKU == nil {
		out.SKU = []ProductSKU{}
	}
	return out, nil
}

// fetchComments degrades to an empty aggregate when the envelope reports a failure.
func fetchComments(ctx context.Context, client *backend.Client, token, productID string) (CommentAggregate, error) {
	q := url.Values{}
	q.Set("product_id", productID)
	q.Set("page", "1")
	q.Set("page_size", strconv.Itoa(commentPageSize))

	env, err := client.Envelope(ctx, backend.Request{
		Method: http.MethodGet,
		Path:   "/comments",
		Query:  q,
		Token:  token,
	})
	if err != nil {
		return CommentAggregate{}, err
	}
	if err := env.Expect(backend.CodeOK); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("comments unavailable")
		return emptyComments(), nil
	}

	var page commentPage
	if err := env.DecodeResult(&page); err != nil {
		return CommentAggregate{}, err
	}

	var buckets [5][]string
	for _, c := range page.Data {
		content := strings.TrimSpace(c.Content)
		if c.Rating < 1 || c.Rating > 5 || content == "" {
			continue
		}
		buckets[c.Rating-1] = append(buckets[c.Rating-1], content)
	}

	agg := CommentAggregate{
		Data:          []RatingBucket{},
		Limit:         page.Limit,
		TotalElements: page.TotalElements,
	}
	for i, comments := range buckets {
		if len(comments) == 0 {
			continue
		}
		agg.Data = append(agg.Data, RatingBucket{Star: i + 1, Count: len(comments), Comments: comments})
	}
	return agg, nil
}
