package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Ecom-Support/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Ecom-Support/pkg/openrouter"
)

// Config holds the shared model settings and per-agent overrides. A negative
// temperature override means "use the shared temperature".
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	OrchestratorModel        string  `envconfig:"ORCHESTRATOR_MODEL" split_words:"true"`
	OrderModel               string  `envconfig:"ORDER_MODEL" split_words:"true"`
	VoucherModel             string  `envconfig:"VOUCHER_MODEL" split_words:"true"`
	ProductDetailModel       string  `envconfig:"PRODUCT_DETAIL_MODEL" split_words:"true"`
	RetrievalModel           string  `envconfig:"RETRIEVAL_MODEL" split_words:"true"`
	OrchestratorTemperature  float32 `envconfig:"ORCHESTRATOR_TEMPERATURE" split_words:"true" default:"-1"`
	OrderTemperature         float32 `envconfig:"ORDER_TEMPERATURE" split_words:"true" default:"-1"`
	VoucherTemperature       float32 `envconfig:"VOUCHER_TEMPERATURE" split_words:"true" default:"-1"`
	ProductDetailTemperature float32 `envconfig:"PRODUCT_DETAIL_TEMPERATURE" split_words:"true" default:"-1"`
	RetrievalTemperature     float32 `envconfig:"RETRIEVAL_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) override(agentType contractx.AgentType) (string, float32) {
	switch agentType {
	case contractx.AgentTypeOrchestrator:
		return c.OrchestratorModel, c.OrchestratorTemperature
	case contractx.AgentTypeOrder:
		return c.OrderModel, c.OrderTemperature
	case contractx.AgentTypeVoucher:
		return c.VoucherModel, c.VoucherTemperature
	case contractx.AgentTypeProductDetail:
		return c.ProductDetailModel, c.ProductDetailTemperature
	case contractx.AgentTypeRetrieval:
		return c.RetrievalModel, c.RetrievalTemperature
	default:
		return "", -1
	}
}

// ModelFor resolves the model setup of one agent: its override wins over the
// shared model and temperature.
func (c Config) ModelFor(agentType contractx.AgentType) openrouterx.ModelConfig {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	m, t := c.override(agentType)
	if v := strings.TrimSpace(m); v != "" {
		modelName = v
	}
	if t >= 0 {
		temp = t
	}

	return openrouterx.ModelConfig{
		Agent:       string(agentType),
		BaseURL:     strings.TrimSpace(c.BaseURL),
		APIKey:      strings.TrimSpace(c.APIKey),
		Model:       modelName,
		MaxTokens:   c.MaxCompletionToken,
		Temperature: temp,
		Timeout:     c.Timeout,
		SiteURL:     strings.TrimSpace(c.SiteURL),
		SiteName:    strings.TrimSpace(c.SiteName),
	}
}
