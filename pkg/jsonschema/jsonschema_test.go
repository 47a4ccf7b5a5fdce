package jsonschema

import (
	"errors"
	"testing"
)

const twoFieldSchema = `{
  "type": "object",
  "properties": {
    "response_text": {"type": "string"},
    "order_ids": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["response_text", "order_ids"]
}`

func TestValidateAcceptsMatchingDocument(t *testing.T) {
	t.Parallel()

	v := MustNew([]byte(twoFieldSchema))
	if err := v.Validate([]byte(`{"response_text":"ok","order_ids":["o1"]}`)); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRejectsMissingField(t *testing.T) {
	t.Parallel()

	v := MustNew([]byte(twoFieldSchema))
	err := v.Validate([]byte(`{"response_text":"ok"}`))
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("Validate() error = %v, want ErrInvalidDocument", err)
	}
}

func TestValidateRejectsNonJSON(t *testing.T) {
	t.Parallel()

	v := MustNew([]byte(twoFieldSchema))
	if err := v.Validate([]byte("plain text")); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("Validate() error = %v, want ErrInvalidDocument", err)
	}
}

func TestValidateValue(t *testing.T) {
	t.Parallel()

	v := MustNew([]byte(`{"type":"object","properties":{"intent":{"type":"string","enum":["product","policy"]}},"required":["intent"]}`))
	if err := v.ValidateValue(map[string]any{"intent": "product"}); err != nil {
		t.Fatalf("ValidateValue() error = %v", err)
	}
	if err := v.ValidateValue(map[string]any{"intent": "shipping"}); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("ValidateValue() error = %v, want ErrInvalidDocument", err)
	}
}

func TestNewRejectsBrokenSchema(t *testing.T) {
	t.Parallel()

	if _, err := New([]byte(`{"type":`)); !errors.Is(err, ErrInvalidSchema) {
		t.Fatalf("New() error = %v, want ErrInvalidSchema", err)
	}
}
