package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"deepinfra-go/pkg/types"
)

// ErrMissingField is wrapped by decode errors for required response fields.
var ErrMissingField = errors.New("required field missing")

// ChatCompletionResponse is a decoded chat completion reply. Values are
// only produced by Client.ChatCompletion.
type ChatCompletionResponse struct {
	id      string
	object  string
	created int64
	model   string
	choices []types.Choice
	usage   types.Usage
}

type wireChatResponse struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices *[]wireChoice `json:"choices"`
	Usage   *wireUsage    `json:"usage"`
}

type wireChoice struct {
	Index        int                `json:"index"`
	Message      types.Message      `json:"message"`
	FinishReason types.FinishReason `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	EstimatedCost    *float64 `json:"estimated_cost,omitempty"`
}

func decodeChatCompletion(body []byte) (*ChatCompletionResponse, error) {
	var raw wireChatResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode chat completion: %w", err)
	}
	if raw.Choices == nil {
		return nil, fmt.Errorf("decode chat completion: %w: choices", ErrMissingField)
	}

	resp := &ChatCompletionResponse{
		id:      raw.ID,
		object:  raw.Object,
		created: raw.Created,
		model:   raw.Model,
		choices: make([]types.Choice, 0, len(*raw.Choices)),
	}
	for _, c := range *raw.Choices {
		resp.choices = append(resp.choices, types.Choice{
			Index:        c.Index,
			Message:      c.Message,
			FinishReason: c.FinishReason,
		})
	}
	if raw.Usage != nil {
		resp.usage = types.Usage{
			PromptTokens:     raw.Usage.PromptTokens,
			CompletionTokens: raw.Usage.CompletionTokens,
			TotalTokens:      raw.Usage.TotalTokens,
			EstimatedCost:    raw.Usage.EstimatedCost,
		}
	}
	return resp, nil
}

func (r *ChatCompletionResponse) ID() string         { return r.id }
func (r *ChatCompletionResponse) Object() string     { return r.object }
func (r *ChatCompletionResponse) Model() string      { return r.model }
func (r *ChatCompletionResponse) Usage() types.Usage { return r.usage }

// Created returns the provider's creation timestamp.
func (r *ChatCompletionResponse) Created() time.Time {
	return time.Unix(r.created, 0).UTC()
}

// Choices returns a copy of the generated alternatives in provider order.
func (r *ChatCompletionResponse) Choices() []types.Choice {
	out := make([]types.Choice, 0, len(r.choices))
	for _, c := range r.choices {
		c.Message = c.Message.Clone()
		out = append(out, c)
	}
	return out
}

// FirstMessage returns the message of the first choice, if any.
func (r *ChatCompletionResponse) FirstMessage() (types.Message, bool) {
	if len(r.choices) == 0 {
		return types.Message{}, false
	}
	return r.choices[0].Message.Clone(), true
}

// TranscriptionResponse is a decoded transcription reply. Values are only
// produced by Client.AudioTranscription.
type TranscriptionResponse struct {
	text      string
	language  string
	duration  float64
	segments  []types.Segment
	words     []types.Word
	requestID string
}

type wireTranscription struct {
	Text          *string         `json:"text"`
	Language      string          `json:"language"`
	Duration      float64         `json:"duration"`
	InputLengthMS float64         `json:"input_length_ms"`
	Segments      []types.Segment `json:"segments"`
	Words         []types.Word    `json:"words"`
	RequestID     string          `json:"request_id"`
}

// decodeTranscription parses a successful transcription body. Plain
// formats (text, srt, vtt) are taken verbatim as the transcript.
func decodeTranscription(format types.TranscriptFormat, body []byte) (*TranscriptionResponse, error) {
	if format != "" && !format.IsJSON() {
		return &TranscriptionResponse{text: strings.TrimRight(string(body), "\r\n")}, nil
	}

	var raw wireTranscription
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}
	if raw.Text == nil {
		return nil, fmt.Errorf("decode transcription: %w: text", ErrMissingField)
	}

	duration := raw.Duration
	if duration == 0 && raw.InputLengthMS > 0 {
		duration = raw.InputLengthMS / 1000
	}

	return &TranscriptionResponse{
		text:      *raw.Text,
		language:  raw.Language,
		duration:  duration,
		segments:  raw.Segments,
		words:     raw.Words,
		requestID: raw.RequestID,
	}, nil
}

func (r *TranscriptionResponse) Text() string      { return r.text }
func (r *TranscriptionResponse) Language() string  { return r.language }
func (r *TranscriptionResponse) RequestID() string { return r.requestID }

// Duration is the length of the input audio, zero when not reported.
func (r *TranscriptionResponse) Duration() time.Duration {
	return time.Duration(r.duration * float64(time.Second))
}

func (r *TranscriptionResponse) Segments() []types.Segment {
	return append([]types.Segment(nil), r.segments...)
}

func (r *TranscriptionResponse) Words() []types.Word {
	return append([]types.Word(nil), r.words...)
}
