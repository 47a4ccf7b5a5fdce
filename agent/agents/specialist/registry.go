package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	llmx "github.com/tanpawarit/Chative-Ecom-Support/agent/llm"
	promptx "github.com/tanpawarit/Chative-Ecom-Support/agent/prompt"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
	"github.com/tanpawarit/Chative-Ecom-Support/agent/tool"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/backend"
	openrouterx "github.com/tanpawarit/Chative-Ecom-Support/pkg/openrouter"
	"github.com/tanpawarit/Chative-Ecom-Support/pkg/vectorsearch"
)

// Deps are the collaborators shared by every handler. Handler conversations
// live in Store, a per-process memory store; nil gets a fresh one.
type Deps struct {
	Backends      backend.Clients
	Searcher      vectorsearch.Searcher
	Store         *statex.MemoryStore
	HistoryLength int
	Retrieval     RetrievalOptions
}

// Models holds one chat model per handler.
type Models struct {
	Order         einomodel.ToolCallingChatModel
	Voucher       einomodel.ToolCallingChatModel
	ProductDetail einomodel.ToolCallingChatModel
	Retrieval     einomodel.ToolCallingChatModel
}

type registryImpl struct {
	order         contractx.Handler
	voucher       contractx.Handler
	productDetail contractx.Handler
	retrieval     contractx.Handler
}

func (r *registryImpl) Order() contractx.Handler         { return r.order }
func (r *registryImpl) Voucher() contractx.Handler       { return r.voucher }
func (r *registryImpl) ProductDetail() contractx.Handler { return r.productDetail }
func (r *registryImpl) Retrieval() contractx.Handler     { return r.retrieval }

func NewRegistry(ctx context.Context, cfg llmx.Config, deps Deps) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	build := func(agentType contractx.AgentType) (einomodel.ToolCallingChatModel, error) {
		m, err := openrouterx.NewChatModel(ctx, cfg.ModelFor(agentType))
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, agentType, err)
		}
		return m, nil
	}

	var (
		models Models
		err    error
	)
	if models.Order, err = build(contractx.AgentTypeOrder); err != nil {
		return nil, err
	}
	if models.Voucher, err = build(contractx.AgentTypeVoucher); err != nil {
		return nil, err
	}
	if models.ProductDetail, err = build(contractx.AgentTypeProductDetail); err != nil {
		return nil, err
	}
	if models.Retrieval, err = build(contractx.AgentTypeRetrieval); err != nil {
		return nil, err
	}
	return NewRegistryWithModels(ctx, models, deps)
}

// NewRegistryWithModels builds the handlers over caller-provided models.
func NewRegistryWithModels(ctx context.Context, models Models, deps Deps) (contractx.Registry, error) {
	prompts := promptx.LoadPromptSet()
	prompt := func(agentType contractx.AgentType) string {
		p, _ := prompts.For(agentType)
		return p
	}
	catalog := tool.NewCatalog(deps.Backends)

	if deps.Store == nil {
		store, err := statex.NewMemoryStore()
		if err != nil {
			return nil, fmt.Errorf("handler state store: %w", err)
		}
		deps.Store = store
	}

	order, err := newOrderHandler(ctx, models.Order, prompt(contractx.AgentTypeOrder), catalog, deps.Store, deps.HistoryLength)
	if err != nil {
		return nil, err
	}
	voucher, err := newVoucherHandler(ctx, models.Voucher, prompt(contractx.AgentTypeVoucher), catalog, deps.Store, deps.HistoryLength)
	if err != nil {
		return nil, err
	}
	productDetail, err := newProductDetailHandler(ctx, models.ProductDetail, prompt(contractx.AgentTypeProductDetail), deps.Backends, deps.Store, deps.HistoryLength)
	if err != nil {
		return nil, err
	}
	retrieval, err := newRetrievalHandler(ctx, models.Retrieval, prompt(contractx.AgentTypeRetrieval), deps.Searcher, deps.Backends.Products, deps.Retrieval, deps.Store)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		order:         order,
		voucher:       voucher,
		productDetail: productDetail,
		retrieval:     retrieval,
	}, nil
}
