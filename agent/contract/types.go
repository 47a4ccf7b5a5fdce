package contract

import (
	"fmt"
	"strings"
)

type AgentType string

const (
	AgentTypeOrchestrator  AgentType = "orchestrator"
	AgentTypeOrder         AgentType = "order"
	AgentTypeVoucher       AgentType = "voucher"
	AgentTypeProductDetail AgentType = "product_detail"
	AgentTypeRetrieval     AgentType = "retrieval"
)

// Capability names one entry of the orchestrator dispatch table.
type Capability string

const (
	CapabilityRetrieval       Capability = "retrieval"
	CapabilityOrder           Capability = "order"
	CapabilityVoucher         Capability = "voucher"
	CapabilityProductDetail   Capability = "product_detail"
	CapabilityComplaintIntake Capability = "complaint_intake"
)

// Capabilities lists every capability the orchestrator can dispatch.
func Capabilities() []Capability {
	return []Capability{
		CapabilityRetrieval,
		CapabilityOrder,
		CapabilityVoucher,
		CapabilityProductDetail,
		CapabilityComplaintIntake,
	}
}

func ParseCapability(name string) (Capability, error) {
	name = strings.TrimSpace(name)
	for _, c := range Capabilities() {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCapability, name)
}

// HandlerRequest is what the orchestrator passes to a capability handler.
type HandlerRequest struct {
	Query      string `json:"query"`
	Intent     string `json:"intent,omitempty"`
	UserID     string `json:"user_id"`
	Token      string `json:"-"`
	SessionID  string `json:"session_id"`
	ProductKey string `json:"product_key,omitempty"`
}

// HandlerResult is the structured answer of a handler. IdentifierKey names
// the wire field that carries Identifiers.
type HandlerResult struct {
	Text          string
	Error         ErrorKind
	IdentifierKey string
	Identifiers   []string
	Grounding     []map[string]any
}

func Failure(kind ErrorKind, text string) HandlerResult {
	return HandlerResult{Text: text, Error: kind}
}

func (r HandlerResult) Failed() bool {
	return r.Error != ""
}

// Payload renders the result as the capability-result payload.
func (r HandlerResult) Payload() map[string]any {
	out := map[string]any{"text": r.Text}
	if r.Error != "" {
		out["error"] = string(r.Error)
	}
	if r.IdentifierKey != "" {
		ids := r.Identifiers
		if ids == nil {
			ids = []string{}
		}
		out[r.IdentifierKey] = ids
	}
	if r.Grounding != nil {
		out["matched_products"] = r.Grounding
	}
	return out
}

// ToolRequest is a tool call planned by a handler's reasoning step.
type ToolRequest struct {
	Tool   string         `json:"tool"`
	CallID string         `json:"call_id,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
}

type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
