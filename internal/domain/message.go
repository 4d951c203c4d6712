package domain

import "time"

// Role constants for conversation turns. Function calls are carried by model
// turns and function results by user turns, as the Gemini protocol expects.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Blob is inline file content attached to a turn.
type Blob struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// FunctionCall is a model request to invoke a tool.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResult carries a tool's response mapping back to the model.
type FunctionResult struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Part is one piece of a turn. Exactly one content field is set.
type Part struct {
	Text           string          `json:"text,omitempty"`
	Blob           *Blob           `json:"blob,omitempty"`
	FunctionCall   *FunctionCall   `json:"function_call,omitempty"`
	FunctionResult *FunctionResult `json:"function_result,omitempty"`
	// ThoughtSignature is opaque model state that must be echoed back with
	// the function call it came with.
	ThoughtSignature []byte `json:"thought_signature,omitempty"`
}

// Turn is one role-tagged unit of conversation content.
type Turn struct {
	Role      string    `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// TextPart returns a text part.
func TextPart(s string) Part { return Part{Text: s} }

// BlobPart returns an inline file part.
func BlobPart(mimeType string, data []byte) Part {
	return Part{Blob: &Blob{MIMEType: mimeType, Data: data}}
}

// NewUserTurn assembles a user turn from free text and attached files.
// Files come first so the text reads as an instruction about them.
func NewUserTurn(text string, files []Blob) Turn {
	parts := make([]Part, 0, len(files)+1)
	for _, f := range files {
		parts = append(parts, BlobPart(f.MIMEType, f.Data))
	}
	if text != "" {
		parts = append(parts, TextPart(text))
	}
	return Turn{Role: RoleUser, Parts: parts}
}

// NewModelTextTurn returns a model turn holding a single text answer.
func NewModelTextTurn(text string) Turn {
	return Turn{Role: RoleModel, Parts: []Part{TextPart(text)}}
}

// Text concatenates the text parts of the turn.
func (t Turn) Text() string {
	var out string
	for _, p := range t.Parts {
		out += p.Text
	}
	return out
}

// FunctionCalls returns the function-call parts of the turn in order.
func (t Turn) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range t.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, *p.FunctionCall)
		}
	}
	return calls
}
