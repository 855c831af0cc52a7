package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

var (
	errUnknownRole    = errors.New("unknown role")
	errEmptyContent   = errors.New("message content must not be empty")
	errEmptyParts     = errors.New("content parts must not be empty")
	errInvalidContent = errors.New("invalid message content")
)

// Valid reports whether r is one of the four supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Content is the body of a message: either Text or Parts.
type Content interface {
	isContent()
}

// Text is plain string content, encoded as a bare JSON string.
type Text string

func (Text) isContent() {}

// Parts is an ordered sequence of text and image parts, encoded as a JSON array.
type Parts []Part

func (Parts) isContent() {}

// NewParts collects parts into a Parts content value.
func NewParts(parts ...Part) Parts {
	out := make(Parts, len(parts))
	copy(out, parts)
	return out
}

// Part is a single element of multimodal content: TextPart or ImagePart.
type Part interface {
	isPart()
}

// TextPart is a text element of multimodal content.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// ImagePart references an image by URL (http(s) or data URI).
type ImagePart struct {
	URL    string
	Detail string // "auto", "low" or "high"
}

func (ImagePart) isPart() {}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single conversation turn.
type Message struct {
	Role       Role
	Content    Content
	Name       string
	ToolCallID string
	ToolCalls  []ToolCall
}

// NewMessage builds a message for any role/content combination.
func NewMessage(role Role, content Content) Message {
	return Message{Role: role, Content: content}
}

// SystemMessage returns a system turn with plain text content.
func SystemMessage(text string) Message {
	return NewMessage(RoleSystem, Text(text))
}

// UserMessage returns a user turn with plain text content.
func UserMessage(text string) Message {
	return NewMessage(RoleUser, Text(text))
}

// UserParts returns a user turn with multimodal content.
func UserParts(parts ...Part) Message {
	return NewMessage(RoleUser, NewParts(parts...))
}

// AssistantMessage returns an assistant turn with plain text content.
func AssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, Text(text))
}

// ToolMessage returns the result of a tool call identified by callID.
func ToolMessage(callID, text string) Message {
	msg := NewMessage(RoleTool, Text(text))
	msg.ToolCallID = callID
	return msg
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	out := m
	if parts, ok := m.Content.(Parts); ok {
		out.Content = NewParts(parts...)
	}
	if m.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return out
}

// TextContent flattens the message content into a single string,
// joining text parts and skipping images.
func (m Message) TextContent() string {
	switch c := m.Content.(type) {
	case Text:
		return string(c)
	case Parts:
		var builder strings.Builder
		for _, part := range c {
			if tp, ok := part.(TextPart); ok {
				builder.WriteString(tp.Text)
			}
		}
		return builder.String()
	default:
		return ""
	}
}

// Validate checks that the message has a known role and non-empty content.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: %q", errUnknownRole, m.Role)
	}

	if m.Content == nil {
		if m.Role == RoleAssistant && len(m.ToolCalls) > 0 {
			return nil
		}
		return errEmptyContent
	}

	switch c := m.Content.(type) {
	case Text:
		if strings.TrimSpace(string(c)) == "" && !(m.Role == RoleAssistant && len(m.ToolCalls) > 0) {
			return errEmptyContent
		}
	case Parts:
		if len(c) == 0 {
			return errEmptyParts
		}
		for i, part := range c {
			if err := validatePart(part); err != nil {
				return fmt.Errorf("part[%d]: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("%w: unsupported content type %T", errInvalidContent, c)
	}

	if m.Role == RoleTool && strings.TrimSpace(m.ToolCallID) == "" {
		return errors.New("tool message requires a tool_call_id")
	}
	return nil
}

func validatePart(part Part) error {
	switch p := part.(type) {
	case TextPart:
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("%w: text part is blank", errInvalidContent)
		}
	case ImagePart:
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("%w: image part has no url", errInvalidContent)
		}
	default:
		return fmt.Errorf("%w: nil part", errInvalidContent)
	}
	return nil
}

type wireMessage struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// MarshalJSON encodes the message in the OpenAI-compatible shape.
func (m Message) MarshalJSON() ([]byte, error) {
	content, err := marshalContent(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{
		Role:       m.Role,
		Content:    content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
		ToolCalls:  m.ToolCalls,
	})
}

// UnmarshalJSON accepts string, array-of-parts and null content.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw wireMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	content, err := unmarshalContent(raw.Content)
	if err != nil {
		return err
	}

	*m = Message{
		Role:       raw.Role,
		Content:    content,
		Name:       raw.Name,
		ToolCallID: raw.ToolCallID,
		ToolCalls:  raw.ToolCalls,
	}
	return nil
}

func marshalContent(content Content) (json.RawMessage, error) {
	switch c := content.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case Text:
		return json.Marshal(string(c))
	case Parts:
		parts := make([]wirePart, 0, len(c))
		for i, part := range c {
			switch p := part.(type) {
			case TextPart:
				parts = append(parts, wirePart{Type: "text", Text: p.Text})
			case ImagePart:
				parts = append(parts, wirePart{
					Type:     "image_url",
					ImageURL: &wireImageURL{URL: p.URL, Detail: p.Detail},
				})
			default:
				return nil, fmt.Errorf("%w: part[%d] has unsupported type %T", errInvalidContent, i, part)
			}
		}
		return json.Marshal(parts)
	default:
		return nil, fmt.Errorf("%w: unsupported content type %T", errInvalidContent, content)
	}
}

func unmarshalContent(raw json.RawMessage) (Content, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return Text(text), nil
	}

	var segments []wirePart
	if err := json.Unmarshal(trimmed, &segments); err != nil {
		return nil, fmt.Errorf("%w: unsupported content structure", errInvalidContent)
	}

	parts := make(Parts, 0, len(segments))
	for _, segment := range segments {
		switch segment.Type {
		case "text":
			parts = append(parts, TextPart{Text: segment.Text})
		case "image_url":
			if segment.ImageURL == nil {
				return nil, fmt.Errorf("%w: image_url part without url", errInvalidContent)
			}
			parts = append(parts, ImagePart{URL: segment.ImageURL.URL, Detail: segment.ImageURL.Detail})
		default:
			return nil, fmt.Errorf("%w: segment type %q not supported", errInvalidContent, segment.Type)
		}
	}
	return parts, nil
}
