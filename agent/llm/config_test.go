package llm

import (
	"errors"
	"testing"

	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
)

func TestModelForAppliesOverrides(t *testing.T) {
	t.Parallel()

	cfg := Config{
		APIKey:                  "k",
		Model:                   "base-model",
		Temperature:             0.5,
		MaxCompletionToken:      1000,
		OrderModel:              "order-model",
		OrderTemperature:        0.1,
		RetrievalTemperature:    -1,
		OrchestratorTemperature: 0,
	}

	order := cfg.ModelFor(contractx.AgentTypeOrder)
	if order.Model != "order-model" || order.Temperature != 0.1 {
		t.Fatalf("order config = %+v", order)
	}

	retrieval := cfg.ModelFor(contractx.AgentTypeRetrieval)
	if retrieval.Model != "base-model" || retrieval.Temperature != 0.5 {
		t.Fatalf("retrieval config = %+v", retrieval)
	}

	root := cfg.ModelFor(contractx.AgentTypeOrchestrator)
	if root.Temperature != 0 {
		t.Fatalf("orchestrator temperature = %v, want 0", root.Temperature)
	}
	if root.MaxTokens != 1000 || root.Agent != string(contractx.AgentTypeOrchestrator) {
		t.Fatalf("orchestrator config = %+v", root)
	}
}

func TestValidateRequiresKeyAndModel(t *testing.T) {
	t.Parallel()

	if err := (Config{Model: "m"}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
	if err := (Config{APIKey: "k"}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}
