package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	eventx "github.com/tanpawarit/Chative-Ecom-Support/agent/event"
	statex "github.com/tanpawarit/Chative-Ecom-Support/agent/state"
	jsonschemax "github.com/tanpawarit/Chative-Ecom-Support/pkg/jsonschema"
)

const (
	MessageMissingToken      = "Authorization token is missing"
	MessageMissingProductKey = "Không tìm thấy sản phẩm để phân tích"
	MessageComplaintRedirect = "Cảm ơn bạn đã góp ý, hệ thống đã chuyển hướng bạn tới trang góp ý, bạn có thể gửi góp ý tới sàn để phía sàn sau này cải thiện tốt hơn!!!"

	ComplaintSubmitTarget = "complaint_page"
	unknownUser           = "unknown"
)

// invocation is the shared state a capability call sees.
type invocation struct {
	token      string
	userID     string
	sessionID  string
	productKey string
}

func invocationFrom(conv *statex.ConversationState) invocation {
	inv := invocation{userID: unknownUser}
	if v, ok := conv.SharedString(statex.SharedToken); ok {
		inv.token = v
	}
	if v, ok := conv.SharedString(statex.SharedUserID); ok {
		inv.userID = v
	}
	if v, ok := conv.SharedString(statex.SharedSessionID); ok {
		inv.sessionID = v
	} else {
		inv.sessionID = uuid.NewString()
	}
	if v, ok := conv.SharedString(statex.SharedProductKey); ok {
		inv.productKey = v
	}
	return inv
}

func (inv invocation) request(query string) contractx.HandlerRequest {
	return contractx.HandlerRequest{
		Query:      query,
		UserID:     inv.userID,
		Token:      inv.token,
		SessionID:  inv.sessionID,
		ProductKey: inv.productKey,
	}
}

type capabilityFunc func(ctx context.Context, inv invocation, args map[string]any) map[string]any

func errorPayload(message string) map[string]any {
	return map[string]any{"error": message, "text": message}
}

// buildDispatch returns one entry per declared capability. Declarations and
// entries must match exactly.
func buildDispatch(registry contractx.Registry, infos []*schema.ToolInfo) (map[contractx.Capability]capabilityFunc, error) {
	withToken := func(h contractx.Handler, needsProduct bool) capabilityFunc {
		return func(ctx context.Context, inv invocation, args map[string]any) map[string]any {
			if inv.token == "" {
				return errorPayload(MessageMissingToken)
			}
			if needsProduct && inv.productKey == "" {
				return errorPayload(MessageMissingProductKey)
			}
			query, _ := args["query"].(string)
			return h.Answer(ctx, inv.request(query)).Payload()
		}
	}

	table := map[contractx.Capability]capabilityFunc{
		contractx.CapabilityRetrieval: func(ctx context.Context, inv invocation, args map[string]any) map[string]any {
			req := inv.request("")
			req.Query, _ = args["query"].(string)
			req.Intent, _ = args["intent"].(string)
			return registry.Retrieval().Answer(ctx, req).Payload()
		},
		contractx.CapabilityOrder:           withToken(registry.Order(), false),
		contractx.CapabilityVoucher:         withToken(registry.Voucher(), false),
		contractx.CapabilityProductDetail:   withToken(registry.ProductDetail(), true),
		contractx.CapabilityComplaintIntake: complaintIntake,
	}

	declared := make(map[contractx.Capability]struct{}, len(infos))
	for _, info := range infos {
		c, err := contractx.ParseCapability(info.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := declared[c]; dup {
			return nil, fmt.Errorf("%w: capability %s declared twice", contractx.ErrValidation, c)
		}
		if _, ok := table[c]; !ok {
			return nil, fmt.Errorf("%w: capability %s has no handler", contractx.ErrValidation, c)
		}
		declared[c] = struct{}{}
	}
	for c := range table {
		if _, ok := declared[c]; !ok {
			return nil, fmt.Errorf("%w: capability %s is not declared", contractx.ErrValidation, c)
		}
	}
	return table, nil
}

// complaintIntake opens the complaint page pre-filled with the summary. It
// never calls a backend.
func complaintIntake(_ context.Context, _ invocation, args map[string]any) map[string]any {
	category, _ := args["category"].(string)
	content, _ := args["content"].(string)
	return map[string]any{
		"result": []eventx.Part{{
			Kind: "form",
			Form: &eventx.FormSpec{
				Fields: map[string]any{
					"category": category,
					"content":  content,
				},
				SubmitTarget: ComplaintSubmitTarget,
				Message:      MessageComplaintRedirect,
			},
		}},
	}
}

// normalizeArgs fixes model casing before validation.
func normalizeArgs(c contractx.Capability, args map[string]any) {
	switch c {
	case contractx.CapabilityComplaintIntake:
		if v, ok := args["category"].(string); ok {
			args["category"] = strings.ToUpper(strings.TrimSpace(v))
		}
	case contractx.CapabilityRetrieval:
		if v, ok := args["intent"].(string); ok {
			args["intent"] = strings.ToLower(strings.TrimSpace(v))
		}
	}
}

func validateArgs(validators map[contractx.Capability]*jsonschemax.Validator, c contractx.Capability, args map[string]any) error {
	v, ok := validators[c]
	if !ok {
		return nil
	}
	if err := v.ValidateValue(args); err != nil {
		return fmt.Errorf("%w: arguments for %s: %v", contractx.ErrValidation, c, err)
	}
	return nil
}

func capabilityNames(table map[contractx.Capability]capabilityFunc) []string {
	out := make([]string, 0, len(table))
	for c := range table {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}
