package event

import (
	"encoding/json"
)

// Kind tags the populated variant of a TerminalResponse.
type Kind string

const (
	KindText           Kind = "text"
	KindStructuredData Kind = "data"
	KindFileReference  Kind = "file"
	KindForm           Kind = "form"
	KindError          Kind = "error"
)

// Part is one typed item of a structured result.
type Part struct {
	Kind string          `json:"kind"`
	Text string          `json:"text,omitempty"`
	Data map[string]any  `json:"data,omitempty"`
	File *FileDescriptor `json:"file,omitempty"`
	Form *FormSpec       `json:"form,omitempty"`
}

type FileDescriptor struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
}

// FormSpec asks the client to open a form pre-filled with Fields.
type FormSpec struct {
	Fields       map[string]any `json:"fields"`
	SubmitTarget string         `json:"submit_target"`
	Message      string         `json:"message,omitempty"`
}

// TerminalResponse is the single answer of a run. Exactly one variant is set,
// selected by Kind.
type TerminalResponse struct {
	Kind  Kind
	Text  string
	Extra map[string]any
	Parts []Part
	Files []FileDescriptor
	Form  *FormSpec
	Error string
}

func Text(text string, extra map[string]any) TerminalResponse {
	return TerminalResponse{Kind: KindText, Text: text, Extra: extra}
}

func StructuredData(parts []Part) TerminalResponse {
	return TerminalResponse{Kind: KindStructuredData, Parts: parts}
}

func FileReference(files []FileDescriptor, parts []Part) TerminalResponse {
	return TerminalResponse{Kind: KindFileReference, Files: files, Parts: parts}
}

func Form(form FormSpec) TerminalResponse {
	return TerminalResponse{Kind: KindForm, Form: &form}
}

func Error(message string) TerminalResponse {
	return TerminalResponse{Kind: KindError, Error: message}
}

func (r TerminalResponse) IsError() bool {
	return r.Kind == KindError
}

// Payload renders the wire object returned to callers.
func (r TerminalResponse) Payload() map[string]any {
	switch r.Kind {
	case KindText:
		out := make(map[string]any, len(r.Extra)+1)
		for k, v := range r.Extra {
			out[k] = v
		}
		out["text"] = r.Text
		return out
	case KindStructuredData, KindFileReference:
		parts := r.Parts
		if parts == nil {
			parts = []Part{}
		}
		return map[string]any{"result": parts}
	case KindForm:
		if r.Form == nil {
			return map[string]any{"form": nil}
		}
		return map[string]any{
			"form": map[string]any{
				"fields":        r.Form.Fields,
				"submit_target": r.Form.SubmitTarget,
			},
			"text": r.Form.Message,
		}
	case KindError:
		return map[string]any{"error": r.Error}
	default:
		return nil
	}
}

func (r TerminalResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Payload())
}

// ResponseType names the variant for flattened logs.
func (r TerminalResponse) ResponseType() string {
	switch r.Kind {
	case KindText, KindForm:
		return "text"
	case KindStructuredData, KindFileReference:
		return "result"
	case KindError:
		return "dict"
	default:
		return "None"
	}
}

// Preview returns the human-readable part of the response.
func (r TerminalResponse) Preview() string {
	switch r.Kind {
	case KindText:
		return r.Text
	case KindForm:
		if r.Form != nil {
			return r.Form.Message
		}
	case KindError:
		return r.Error
	case KindStructuredData, KindFileReference:
		raw, err := json.Marshal(r.Parts)
		if err == nil {
			return string(raw)
		}
	}
	return ""
}
