package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/tool"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/vectorsearch"
)

const (
	MessageNoProducts = "Không tìm thấy sản phẩm nào phù hợp."
	MessageNoPolicies = "Không tìm thấy chính sách nào phù hợp."
)

const (
	labelProductContext = "BỐI CẢNH SẢN PHẨM"
	labelProductData    = "DỮ LIỆU SẢN PHẨM"
)

func invalidIntentMessage(intent string) string {
	return fmt.Sprintf("Intent '%s' không hợp lệ. Chỉ chấp nhận 'product' hoặc 'policy'.", intent)
}

func productNotFoundMessage(req contractx.HandlerRequest) string {
	return "Không tìm thấy sản phẩm với key: " + strings.TrimSpace(req.ProductKey)
}

// newToolHandler is shared by the order and voucher handlers: one backend tool
// planned by the model, then a structured answer.
func newToolHandler[T structuredOutput](
	ctx context.Context,
	def handlerSpec,
	chatModel einomodel.ToolCallingChatModel,
	catalog *tool.Catalog,
	store statex.Store,
	window int,
) (*runtime[T], error) {
	infos, executor := catalog.BuildForAgent(def.agentType)
	if len(infos) != 1 {
		return nil, fmt.Errorf("%w: agent=%s expects exactly one tool, got %d", contractx.ErrValidation, def.agentType, len(infos))
	}
	def.tool = infos[0]
	def.executor = executor
	return newRuntime[T](ctx, def, chatModel, store, window)
}

func newOrderHandler(ctx context.Context, chatModel einomodel.ToolCallingChatModel, prompt string, catalog *tool.Catalog, store statex.Store, window int) (contractx.Handler, error) {
	h, err := newToolHandler[orderOutput](ctx, handlerSpec{
		agentType:     contractx.AgentTypeOrder,
		prompt:        prompt,
		outputSchema:  orderOutputSchema,
		identifierKey: "order_ids",
		apology:       ApologyOrder,
		requireToken:  true,
		withHistory:   true,
	}, chatModel, catalog, store, window)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func newVoucherHandler(ctx context.Context, chatModel einomodel.ToolCallingChatModel, prompt string, catalog *tool.Catalog, store statex.Store, window int) (contractx.Handler, error) {
	h, err := newToolHandler[voucherOutput](ctx, handlerSpec{
		agentType:     contractx.AgentTypeVoucher,
		prompt:        prompt,
		outputSchema:  voucherOutputSchema,
		identifierKey: "voucher_codes",
		apology:       ApologyVoucher,
		requireToken:  true,
		withHistory:   true,
	}, chatModel, catalog, store, window)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// newProductDetailHandler fetches the product named by the request key
// before the model runs, so the model only analyses the data.
func newProductDetailHandler(ctx context.Context, chatModel einomodel.ToolCallingChatModel, prompt string, backends backend.Clients, store statex.Store, window int) (contractx.Handler, error) {
	prefetch := func(ctx context.Context, req contractx.HandlerRequest) (grounding, error) {
		key := strings.TrimSpace(req.ProductKey)
		detail, err := tool.GetProductDetail(ctx, backends.Products, backends.Comments, req.Token, key)
		if err != nil {
			return grounding{}, err
		}
		input, err := groundedInput(labelProductData, detail, req.Query)
		if err != nil {
			return grounding{}, fmt.Errorf("%w: encode product detail: %v", contractx.ErrValidation, err)
		}
		return grounding{input: input, fallbackIDs: []string{key}}, nil
	}

	h, err := newRuntime[productDetailOutput](ctx, handlerSpec{
		agentType:     contractx.AgentTypeProductDetail,
		prompt:        prompt,
		outputSchema:  productDetailOutputSchema,
		identifierKey: "product_keys",
		apology:       ApologyProductDetail,
		requireToken:  true,
		withHistory:   true,
		prefetch:      prefetch,
		notFound:      productNotFoundMessage,
	}, chatModel, store, window)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// RetrievalOptions bound the similarity search of the retrieval handler.
type RetrievalOptions struct {
	TopK     int
	MinScore float64
}

func newRetrievalHandler(ctx context.Context, chatModel einomodel.ToolCallingChatModel, prompt string, searcher vectorsearch.Searcher, products *backend.Client, opts RetrievalOptions, store statex.Store) (contractx.Handler, error) {
	if searcher == nil {
		return nil, fmt.Errorf("%w: retrieval handler needs a searcher", contractx.ErrValidation)
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	prefetch := func(ctx context.Context, req contractx.HandlerRequest) (grounding, error) {
		intent := strings.ToLower(strings.TrimSpace(req.Intent))
		docType := vectorsearch.DocType(intent)
		if docType != vectorsearch.DocProduct && docType != vectorsearch.DocPolicy {
			done := contractx.Failure(contractx.ErrorValidation, invalidIntentMessage(req.Intent))
			return grounding{done: &done}, nil
		}

		hits, err := searcher.Search(ctx, req.Query, docType, opts.TopK)
		if err != nil {
			return grounding{}, fmt.Errorf("vector search intent=%s: %w", intent, err)
		}
		hits = vectorsearch.FilterByScore(hits, opts.MinScore)

		if len(hits) == 0 {
			done := contractx.HandlerResult{
				Text:          MessageNoPolicies,
				IdentifierKey: "product_ids",
				Identifiers:   []string{},
			}
			if docType == vectorsearch.DocProduct {
				done.Text = MessageNoProducts
				done.Grounding = []map[string]any{}
			}
			return grounding{done: &done}, nil
		}

		if docType == vectorsearch.DocPolicy {
			input, err := groundedInput(labelProductContext, map[string]any{"policies": hits}, req.Query)
			if err != nil {
				return grounding{}, fmt.Errorf("%w: encode policies: %v", contractx.ErrValidation, err)
			}
			return grounding{input: input}, nil
		}

		scores := make(map[string]float64, len(hits))
		for _, h := range hits {
			scores[h.DocID] = h.Score
		}
		found, err := tool.LookupProducts(ctx, products, scores)
		if err != nil {
			return grounding{}, fmt.Errorf("lookup products: %w", err)
		}
		input, err := groundedInput(labelProductContext, map[string]any{"products": found}, req.Query)
		if err != nil {
			return grounding{}, fmt.Errorf("%w: encode products: %v", contractx.ErrValidation, err)
		}
		return grounding{input: input, candidates: found}, nil
	}

	h, err := newRuntime[retrievalOutput](ctx, handlerSpec{
		agentType:     contractx.AgentTypeRetrieval,
		prompt:        prompt,
		outputSchema:  retrievalOutputSchema,
		identifierKey: "product_ids",
		apology:       ApologyRetrieval,
		prefetch:      prefetch,
	}, chatModel, store, 0)
	if err != nil {
		return nil, err
	}
	return h, nil
}
