package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
)

var (
	//go:embed template/root.txt
	rootRaw string

	//go:embed template/order.txt
	orderRaw string

	//go:embed template/voucher.txt
	voucherRaw string

	//go:embed template/product_detail.txt
	productDetailRaw string

	//go:embed template/retrieval.txt
	retrievalRaw string
)

// PromptSet holds loaded prompt content. Root and Order carry FString
// placeholders that are filled per call.
type PromptSet struct {
	Root          string
	Order         string
	Voucher       string
	ProductDetail string
	Retrieval     string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Root:          strings.TrimSpace(rootRaw),
		Order:         strings.TrimSpace(orderRaw),
		Voucher:       strings.TrimSpace(voucherRaw),
		ProductDetail: strings.TrimSpace(productDetailRaw),
		Retrieval:     strings.TrimSpace(retrievalRaw),
	}
}

// For returns the instruction of one agent.
func (p PromptSet) For(agentType contractx.AgentType) (string, error) {
	var out string
	switch agentType {
	case contractx.AgentTypeOrchestrator:
		out = p.Root
	case contractx.AgentTypeOrder:
		out = p.Order
	case contractx.AgentTypeVoucher:
		out = p.Voucher
	case contractx.AgentTypeProductDetail:
		out = p.ProductDetail
	case contractx.AgentTypeRetrieval:
		out = p.Retrieval
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: agent=%s", contractx.ErrPromptMissing, agentType)
	}
	return out, nil
}
