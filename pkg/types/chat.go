package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	DefaultChatModel         = "deepseek-ai/DeepSeek-V3"
	DefaultTemperature       = 1.0
	DefaultTopP              = 1.0
	DefaultN                 = 1
	DefaultRepetitionPenalty = 1.0

	maxStopSequences = 16
	maxChoices       = 4
)

// ResponseFormat restricts the shape of the generated message.
type ResponseFormat string

const (
	ResponseFormatText       ResponseFormat = "text"
	ResponseFormatJSONObject ResponseFormat = "json_object"
)

// Tool choice keywords; any other value names a function to force.
const (
	ToolChoiceNone     = "none"
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
)

// Tool describes a function the model may call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the schema of a callable function.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// FunctionTool is a shorthand for a Tool of type "function".
func FunctionTool(name, description string, parameters json.RawMessage) Tool {
	return Tool{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// ChatCompletionRequestBuilder accumulates chat options. Nothing is
// checked until Build.
type ChatCompletionRequestBuilder struct {
	model             *string
	messages          []Message
	temperature       *float64
	topP              *float64
	minP              *float64
	topK              *int
	maxTokens         *int
	n                 *int
	frequencyPenalty  *float64
	presencePenalty   *float64
	repetitionPenalty *float64
	stop              []string
	stream            bool
	seed              *uint64
	responseFormat    *ResponseFormat
	tools             []Tool
	toolChoice        *string
	user              *string
}

func NewChatCompletionRequestBuilder() *ChatCompletionRequestBuilder {
	return &ChatCompletionRequestBuilder{}
}

func (b *ChatCompletionRequestBuilder) Model(model string) *ChatCompletionRequestBuilder {
	b.model = &model
	return b
}

// Messages replaces the conversation with msgs.
func (b *ChatCompletionRequestBuilder) Messages(msgs ...Message) *ChatCompletionRequestBuilder {
	b.messages = append([]Message(nil), msgs...)
	return b
}

// Message appends a single turn to the conversation.
func (b *ChatCompletionRequestBuilder) Message(msg Message) *ChatCompletionRequestBuilder {
	b.messages = append(b.messages, msg)
	return b
}

func (b *ChatCompletionRequestBuilder) Temperature(v float64) *ChatCompletionRequestBuilder {
	b.temperature = &v
	return b
}

func (b *ChatCompletionRequestBuilder) TopP(v float64) *ChatCompletionRequestBuilder {
	b.topP = &v
	return b
}

func (b *ChatCompletionRequestBuilder) MinP(v float64) *ChatCompletionRequestBuilder {
	b.minP = &v
	return b
}

func (b *ChatCompletionRequestBuilder) TopK(v int) *ChatCompletionRequestBuilder {
	b.topK = &v
	return b
}

func (b *ChatCompletionRequestBuilder) MaxTokens(v int) *ChatCompletionRequestBuilder {
	b.maxTokens = &v
	return b
}

func (b *ChatCompletionRequestBuilder) N(v int) *ChatCompletionRequestBuilder {
	b.n = &v
	return b
}

func (b *ChatCompletionRequestBuilder) FrequencyPenalty(v float64) *ChatCompletionRequestBuilder {
	b.frequencyPenalty = &v
	return b
}

func (b *ChatCompletionRequestBuilder) PresencePenalty(v float64) *ChatCompletionRequestBuilder {
	b.presencePenalty = &v
	return b
}

func (b *ChatCompletionRequestBuilder) RepetitionPenalty(v float64) *ChatCompletionRequestBuilder {
	b.repetitionPenalty = &v
	return b
}

func (b *ChatCompletionRequestBuilder) Stop(sequences ...string) *ChatCompletionRequestBuilder {
	b.stop = append([]string(nil), sequences...)
	return b
}

// Stream is accepted for schema parity; Build rejects true because
// incremental delivery is not supported by this client.
func (b *ChatCompletionRequestBuilder) Stream(v bool) *ChatCompletionRequestBuilder {
	b.stream = v
	return b
}

func (b *ChatCompletionRequestBuilder) Seed(v uint64) *ChatCompletionRequestBuilder {
	b.seed = &v
	return b
}

func (b *ChatCompletionRequestBuilder) ResponseFormat(v ResponseFormat) *ChatCompletionRequestBuilder {
	b.responseFormat = &v
	return b
}

func (b *ChatCompletionRequestBuilder) Tools(tools ...Tool) *ChatCompletionRequestBuilder {
	b.tools = append([]Tool(nil), tools...)
	return b
}

func (b *ChatCompletionRequestBuilder) ToolChoice(v string) *ChatCompletionRequestBuilder {
	b.toolChoice = &v
	return b
}

func (b *ChatCompletionRequestBuilder) User(v string) *ChatCompletionRequestBuilder {
	b.user = &v
	return b
}

// Build validates the accumulated options and resolves defaults. The
// returned request is detached from the builder.
func (b *ChatCompletionRequestBuilder) Build() (ChatCompletionRequest, error) {
	req := ChatCompletionRequest{
		model:             DefaultChatModel,
		temperature:       DefaultTemperature,
		topP:              DefaultTopP,
		n:                 DefaultN,
		repetitionPenalty: DefaultRepetitionPenalty,
	}

	if b.model != nil {
		req.model = strings.TrimSpace(*b.model)
		if req.model == "" {
			return ChatCompletionRequest{}, invalid("model", "must not be blank")
		}
	}

	if len(b.messages) == 0 {
		return ChatCompletionRequest{}, invalid("messages", "at least one message is required")
	}
	req.messages = make([]Message, 0, len(b.messages))
	for i, msg := range b.messages {
		if err := msg.Validate(); err != nil {
			return ChatCompletionRequest{}, &ValidationError{
				Field:  fmt.Sprintf("messages[%d]", i),
				Reason: "invalid message",
				Err:    err,
			}
		}
		req.messages = append(req.messages, msg.Clone())
	}

	if b.stream {
		return ChatCompletionRequest{}, invalid("stream", "streaming responses are not supported")
	}

	if b.temperature != nil {
		if !inRange(*b.temperature, 0, 2) {
			return ChatCompletionRequest{}, invalid("temperature", "must be between 0 and 2, got %v", *b.temperature)
		}
		req.temperature = *b.temperature
	}
	if b.topP != nil {
		if !(*b.topP > 0 && *b.topP <= 1) {
			return ChatCompletionRequest{}, invalid("top_p", "must be in (0, 1], got %v", *b.topP)
		}
		req.topP = *b.topP
	}
	if b.minP != nil {
		if !inRange(*b.minP, 0, 1) {
			return ChatCompletionRequest{}, invalid("min_p", "must be between 0 and 1, got %v", *b.minP)
		}
		req.minP = *b.minP
	}
	if b.topK != nil {
		if *b.topK < 0 {
			return ChatCompletionRequest{}, invalid("top_k", "must not be negative, got %d", *b.topK)
		}
		req.topK = *b.topK
	}
	if b.maxTokens != nil {
		if *b.maxTokens < 1 {
			return ChatCompletionRequest{}, invalid("max_tokens", "must be at least 1, got %d", *b.maxTokens)
		}
		v := *b.maxTokens
		req.maxTokens = &v
	}
	if b.n != nil {
		if *b.n < 1 || *b.n > maxChoices {
			return ChatCompletionRequest{}, invalid("n", "must be between 1 and %d, got %d", maxChoices, *b.n)
		}
		req.n = *b.n
	}
	if b.frequencyPenalty != nil {
		if !inRange(*b.frequencyPenalty, -2, 2) {
			return ChatCompletionRequest{}, invalid("frequency_penalty", "must be between -2 and 2, got %v", *b.frequencyPenalty)
		}
		req.frequencyPenalty = *b.frequencyPenalty
	}
	if b.presencePenalty != nil {
		if !inRange(*b.presencePenalty, -2, 2) {
			return ChatCompletionRequest{}, invalid("presence_penalty", "must be between -2 and 2, got %v", *b.presencePenalty)
		}
		req.presencePenalty = *b.presencePenalty
	}
	if b.repetitionPenalty != nil {
		if !inRange(*b.repetitionPenalty, 0.01, 5) {
			return ChatCompletionRequest{}, invalid("repetition_penalty", "must be between 0.01 and 5, got %v", *b.repetitionPenalty)
		}
		req.repetitionPenalty = *b.repetitionPenalty
	}

	if len(b.stop) > maxStopSequences {
		return ChatCompletionRequest{}, invalid("stop", "at most %d sequences are allowed, got %d", maxStopSequences, len(b.stop))
	}
	for _, seq := range b.stop {
		if seq == "" {
			return ChatCompletionRequest{}, invalid("stop", "sequences must not be empty")
		}
	}
	if len(b.stop) > 0 {
		req.stop = append([]string(nil), b.stop...)
	}

	if b.seed != nil {
		v := *b.seed
		req.seed = &v
	}

	if b.responseFormat != nil {
		switch *b.responseFormat {
		case ResponseFormatText, ResponseFormatJSONObject:
			req.responseFormat = *b.responseFormat
		default:
			return ChatCompletionRequest{}, invalid("response_format", "must be %q or %q, got %q", ResponseFormatText, ResponseFormatJSONObject, *b.responseFormat)
		}
	}

	for i, tool := range b.tools {
		if tool.Type != "function" {
			return ChatCompletionRequest{}, invalid(fmt.Sprintf("tools[%d]", i), "type must be \"function\", got %q", tool.Type)
		}
		if strings.TrimSpace(tool.Function.Name) == "" {
			return ChatCompletionRequest{}, invalid(fmt.Sprintf("tools[%d]", i), "function name must not be blank")
		}
		if len(tool.Function.Parameters) > 0 && !json.Valid(tool.Function.Parameters) {
			return ChatCompletionRequest{}, invalid(fmt.Sprintf("tools[%d]", i), "parameters must be valid JSON")
		}
	}
	if len(b.tools) > 0 {
		req.tools = cloneTools(b.tools)
	}

	if b.toolChoice != nil {
		choice := strings.TrimSpace(*b.toolChoice)
		switch choice {
		case "":
			return ChatCompletionRequest{}, invalid("tool_choice", "must not be blank")
		case ToolChoiceNone, ToolChoiceAuto:
		case ToolChoiceRequired:
			if len(req.tools) == 0 {
				return ChatCompletionRequest{}, invalid("tool_choice", "%q requires at least one tool", choice)
			}
		default:
			if !hasTool(req.tools, choice) {
				return ChatCompletionRequest{}, invalid("tool_choice", "function %q is not among the declared tools", choice)
			}
		}
		req.toolChoice = choice
	}

	if b.user != nil {
		req.user = *b.user
	}

	return req, nil
}

// ChatCompletionRequest is a validated, immutable chat request.
// Obtain one from ChatCompletionRequestBuilder.Build.
type ChatCompletionRequest struct {
	model             string
	messages          []Message
	temperature       float64
	topP              float64
	minP              float64
	topK              int
	maxTokens         *int
	n                 int
	frequencyPenalty  float64
	presencePenalty   float64
	repetitionPenalty float64
	stop              []string
	seed              *uint64
	responseFormat    ResponseFormat
	tools             []Tool
	toolChoice        string
	user              string
}

// IsZero reports whether r was not produced by a successful Build.
func (r ChatCompletionRequest) IsZero() bool {
	return r.model == "" && len(r.messages) == 0
}

func (r ChatCompletionRequest) Model() string { return r.model }

// Messages returns a copy of the conversation.
func (r ChatCompletionRequest) Messages() []Message {
	out := make([]Message, 0, len(r.messages))
	for _, msg := range r.messages {
		out = append(out, msg.Clone())
	}
	return out
}

func (r ChatCompletionRequest) Temperature() float64       { return r.temperature }
func (r ChatCompletionRequest) TopP() float64              { return r.topP }
func (r ChatCompletionRequest) MinP() float64              { return r.minP }
func (r ChatCompletionRequest) TopK() int                  { return r.topK }
func (r ChatCompletionRequest) N() int                     { return r.n }
func (r ChatCompletionRequest) FrequencyPenalty() float64  { return r.frequencyPenalty }
func (r ChatCompletionRequest) PresencePenalty() float64   { return r.presencePenalty }
func (r ChatCompletionRequest) RepetitionPenalty() float64 { return r.repetitionPenalty }
func (r ChatCompletionRequest) ResponseFormat() ResponseFormat {
	return r.responseFormat
}
func (r ChatCompletionRequest) ToolChoice() string { return r.toolChoice }
func (r ChatCompletionRequest) User() string       { return r.user }

// MaxTokens returns the token limit and whether one was set.
func (r ChatCompletionRequest) MaxTokens() (int, bool) {
	if r.maxTokens == nil {
		return 0, false
	}
	return *r.maxTokens, true
}

// Seed returns the sampling seed and whether one was set.
func (r ChatCompletionRequest) Seed() (uint64, bool) {
	if r.seed == nil {
		return 0, false
	}
	return *r.seed, true
}

func (r ChatCompletionRequest) Stop() []string {
	return append([]string(nil), r.stop...)
}

func (r ChatCompletionRequest) Tools() []Tool {
	return cloneTools(r.tools)
}

type chatPayload struct {
	Model             string          `json:"model"`
	Messages          []Message       `json:"messages"`
	Stream            bool            `json:"stream"`
	Temperature       float64         `json:"temperature"`
	TopP              float64         `json:"top_p"`
	MinP              float64         `json:"min_p"`
	TopK              int             `json:"top_k"`
	MaxTokens         *int            `json:"max_tokens,omitempty"`
	N                 int             `json:"n"`
	FrequencyPenalty  float64         `json:"frequency_penalty"`
	PresencePenalty   float64         `json:"presence_penalty"`
	RepetitionPenalty float64         `json:"repetition_penalty"`
	Stop              []string        `json:"stop,omitempty"`
	Seed              *uint64         `json:"seed,omitempty"`
	ResponseFormat    *responseFormat `json:"response_format,omitempty"`
	Tools             []Tool          `json:"tools,omitempty"`
	ToolChoice        json.RawMessage `json:"tool_choice,omitempty"`
	User              string          `json:"user,omitempty"`
}

type responseFormat struct {
	Type ResponseFormat `json:"type"`
}

// MarshalJSON encodes the request body for the chat completions endpoint.
func (r ChatCompletionRequest) MarshalJSON() ([]byte, error) {
	payload := chatPayload{
		Model:             r.model,
		Messages:          r.messages,
		Temperature:       r.temperature,
		TopP:              r.topP,
		MinP:              r.minP,
		TopK:              r.topK,
		MaxTokens:         r.maxTokens,
		N:                 r.n,
		FrequencyPenalty:  r.frequencyPenalty,
		PresencePenalty:   r.presencePenalty,
		RepetitionPenalty: r.repetitionPenalty,
		Stop:              r.stop,
		Seed:              r.seed,
		Tools:             r.tools,
		User:              r.user,
	}

	if r.responseFormat != "" {
		payload.ResponseFormat = &responseFormat{Type: r.responseFormat}
	}

	if r.toolChoice != "" {
		choice, err := marshalToolChoice(r.toolChoice)
		if err != nil {
			return nil, err
		}
		payload.ToolChoice = choice
	}

	return json.Marshal(payload)
}

func marshalToolChoice(choice string) (json.RawMessage, error) {
	switch choice {
	case ToolChoiceNone, ToolChoiceAuto, ToolChoiceRequired:
		return json.Marshal(choice)
	default:
		return json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": choice},
		})
	}
}

func hasTool(tools []Tool, name string) bool {
	for _, tool := range tools {
		if tool.Function.Name == name {
			return true
		}
	}
	return false
}

// cloneTools copies tools including their parameter schemas.
func cloneTools(tools []Tool) []Tool {
	if tools == nil {
		return nil
	}
	out := make([]Tool, len(tools))
	for i, tool := range tools {
		out[i] = tool
		if tool.Function.Parameters != nil {
			out[i].Function.Parameters = bytes.Clone(tool.Function.Parameters)
		}
	}
	return out
}

func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

