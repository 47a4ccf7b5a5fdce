package contract

import "errors"

var (
	ErrModelInvoke       = errors.New("model invoke failed")
	ErrSchemaViolation   = errors.New("model response violates schema")
	ErrPromptMissing     = errors.New("required prompt is missing")
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("authorization token is missing")
	ErrUnknownCapability = errors.New("unknown capability")
	ErrNoResponse        = errors.New("no response from reasoning engine")
)

// ErrorKind classifies a handler failure in its structured error result.
type ErrorKind string

const (
	ErrorUnauthorized     ErrorKind = "unauthorized"
	ErrorUpstreamHTTP     ErrorKind = "upstream_http"
	ErrorUpstreamEnvelope ErrorKind = "upstream_envelope"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorMalformed        ErrorKind = "malformed"
	ErrorValidation       ErrorKind = "validation"
	ErrorModel            ErrorKind = "model"
	ErrorNoResponse       ErrorKind = "no_response"
	ErrorNotFound         ErrorKind = "not_found"
)
