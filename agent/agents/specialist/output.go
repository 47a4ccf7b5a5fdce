package specialist

import (
	"encoding/json"
	"strconv"
	"strings"
)

// identifiers accepts a JSON array of strings or numbers. Models sometimes
// emit numeric order ids.
type identifiers []string

func (ids *identifiers) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				out = append(out, s)
			}
		case float64:
			out = append(out, strconv.FormatFloat(x, 'f', -1, 64))
		}
	}
	*ids = out
	return nil
}

type orderOutput struct {
	ResponseText string      `json:"response_text"`
	OrderIDs     identifiers `json:"order_ids"`
}

func (o orderOutput) answer() string        { return o.ResponseText }
func (o orderOutput) identifiers() []string { return o.OrderIDs }

type voucherOutput struct {
	ResponseText string      `json:"response_text"`
	VoucherCodes identifiers `json:"voucher_codes"`
}

func (o voucherOutput) answer() string        { return o.ResponseText }
func (o voucherOutput) identifiers() []string { return o.VoucherCodes }

type productDetailOutput struct {
	ResponseText string `json:"response_text"`
	ProductKey   string `json:"product_key"`
}

func (o productDetailOutput) answer() string { return o.ResponseText }

func (o productDetailOutput) identifiers() []string {
	if key := strings.TrimSpace(o.ProductKey); key != "" {
		return []string{key}
	}
	return nil
}

type retrievalOutput struct {
	AnalysisText string      `json:"analysis_text"`
	ProductIDs   identifiers `json:"product_ids"`
}

func (o retrievalOutput) answer() string        { return o.AnalysisText }
func (o retrievalOutput) identifiers() []string { return o.ProductIDs }

const (
	orderOutputSchema = `{
  "type": "object",
  "properties": {
    "response_text": {"type": "string", "minLength": 1},
    "order_ids": {"type": "array", "items": {"type": ["string", "number"]}}
  },
  "required": ["response_text"]
}`

	voucherOutputSchema = `{
  "type": "object",
  "properties": {
    "response_text": {"type": "string", "minLength": 1},
    "voucher_codes": {"type": "array", "items": {"type": ["string", "number"]}}
  },
  "required": ["response_text"]
}`

	productDetailOutputSchema = `{
  "type": "object",
  "properties": {
    "response_text": {"type": "string", "minLength": 1},
    "product_key": {"type": ["string", "null"]}
  },
  "required": ["response_text"]
}`

	retrievalOutputSchema = `{
  "type": "object",
  "properties": {
    "analysis_text": {"type": "string", "minLength": 1},
    "product_ids": {"type": "array", "items": {"type": ["string", "number"]}}
  },
  "required": ["analysis_text"]
}`
)

// extractJSON drops markdown fences or prose around the first JSON object.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

// groundedInput renders prefetched context ahead of the user's question.
func groundedInput(label string, context any, query string) (string, error) {
	raw, err := json.MarshalIndent(context, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("[" + label + "]\n")
	b.Write(raw)
	b.WriteString("\n\n[CÂU HỎI CỦA NGƯỜI DÙNG]\n")
	b.WriteString(query)
	return b.String(), nil
}
