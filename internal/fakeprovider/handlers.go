package fakeprovider

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"deepinfra-go/pkg/types"
)

const wordsPerSecond = 2.5

type chatRequest struct {
	Model     string          `json:"model"`
	Messages  []types.Message `json:"messages"`
	Stream    bool            `json:"stream"`
	MaxTokens *int            `json:"max_tokens"`
	N         int             `json:"n"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int                `json:"index"`
	Message      types.Message      `json:"message"`
	FinishReason types.FinishReason `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

// handleChatCompletions echoes the last user turn back as the assistant reply.
func (s *Server) handleChatCompletions(c echo.Context) error {
	var req chatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	if strings.TrimSpace(req.Model) == "" {
		return missingField("body", "model")
	}
	if len(req.Messages) == 0 {
		return missingField("body", "messages")
	}
	if req.Stream {
		return invalidField("streaming is not available on this server", "body", "stream")
	}
	if req.N <= 0 {
		req.N = 1
	}

	promptTokens := 0
	lastUser := ""
	for _, msg := range req.Messages {
		text := msg.TextContent()
		promptTokens += countTokens(text)
		if msg.Role == types.RoleUser {
			lastUser = text
		}
	}

	words := strings.Fields("echo: " + lastUser)
	finish := types.FinishStop
	if req.MaxTokens != nil && *req.MaxTokens < len(words) {
		words = words[:*req.MaxTokens]
		finish = types.FinishLength
	}
	reply := strings.Join(words, " ")

	choices := make([]chatChoice, 0, req.N)
	for i := 0; i < req.N; i++ {
		choices = append(choices, chatChoice{
			Index:        i,
			Message:      types.AssistantMessage(reply),
			FinishReason: finish,
		})
	}

	completionTokens := len(words) * req.N
	return c.JSON(http.StatusOK, chatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: choices,
		Usage: chatUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
			EstimatedCost:    float64(promptTokens+completionTokens) * 1e-7,
		},
	})
}

type transcriptionResponse struct {
	Text     string          `json:"text"`
	Language string          `json:"language,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	Segments []types.Segment `json:"segments,omitempty"`
	Words    []types.Word    `json:"words,omitempty"`
}

// handleTranscriptions describes the uploaded file instead of decoding audio.
func (s *Server) handleTranscriptions(c echo.Context) error {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxUploadBytes)

	if strings.TrimSpace(c.FormValue("model")) == "" {
		return missingField("body", "model")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return missingField("body", "file")
		}
		return invalidField(fmt.Sprintf("malformed multipart body: %v", err), "body")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer file.Close()

	data, err := readAll(file, maxUploadBytes)
	if err != nil {
		return fmt.Errorf("read uploaded file: %w", err)
	}
	if len(data) == 0 {
		return invalidField("file is empty", "body", "file")
	}

	language := c.FormValue("language")
	if language == "" {
		language = "en"
	}
	text := fmt.Sprintf("transcribed %d bytes from %s", len(data), fileHeader.Filename)
	segments := segmentsFor(text)
	duration := segments[len(segments)-1].End

	format := types.TranscriptFormat(c.FormValue("response_format"))
	switch format {
	case "", types.TranscriptJSON:
		return c.JSON(http.StatusOK, transcriptionResponse{Text: text})
	case types.TranscriptVerboseJSON:
		resp := transcriptionResponse{
			Text:     text,
			Language: language,
			Duration: duration,
			Segments: segments,
		}
		if hasFormValue(c, "timestamp_granularities[]", string(types.GranularityWord)) {
			resp.Words = wordsFor(text)
		}
		return c.JSON(http.StatusOK, resp)
	case types.TranscriptText:
		return c.String(http.StatusOK, text+"\n")
	case types.TranscriptSRT:
		return c.String(http.StatusOK, fmt.Sprintf("1\n00:00:00,000 --> %s\n%s\n", srtTimestamp(duration), text))
	case types.TranscriptVTT:
		return c.String(http.StatusOK, fmt.Sprintf("WEBVTT\n\n00:00:00.000 --> %s\n%s\n", strings.Replace(srtTimestamp(duration), ",", ".", 1), text))
	default:
		return invalidField(fmt.Sprintf("unsupported response_format %q", format), "body", "response_format")
	}
}

type inferenceResponse struct {
	Text            string          `json:"text"`
	Language        string          `json:"language"`
	Segments        []types.Segment `json:"segments"`
	InputLengthMS   float64         `json:"input_length_ms"`
	RequestID       string          `json:"request_id"`
	InferenceStatus inferenceStatus `json:"inference_status"`
}

type inferenceStatus struct {
	Status string `json:"status"`
}

// handleInference serves the native endpoint used for URL-sourced audio.
func (s *Server) handleInference(c echo.Context) error {
	model := strings.Trim(c.Param("*"), "/")
	if model == "" {
		return missingField("path", "model")
	}

	audio := strings.TrimSpace(c.FormValue("audio"))
	if audio == "" {
		return missingField("body", "audio")
	}

	language := c.FormValue("language")
	if language == "" {
		language = "en"
	}
	text := fmt.Sprintf("transcribed %s with %s", audio, model)
	segments := segmentsFor(text)

	return c.JSON(http.StatusOK, inferenceResponse{
		Text:            text,
		Language:        language,
		Segments:        segments,
		InputLengthMS:   segments[len(segments)-1].End * 1000,
		RequestID:       uuid.NewString(),
		InferenceStatus: inferenceStatus{Status: "succeeded"},
	})
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return missingField("body")
		}
		return invalidField(fmt.Sprintf("invalid JSON payload: %v", err), "body")
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return invalidField("request body must contain a single JSON object", "body")
	}
	return nil
}

func hasFormValue(c echo.Context, key, want string) bool {
	form, err := c.FormParams()
	if err != nil {
		return false
	}
	for _, v := range form[key] {
		if v == want {
			return true
		}
	}
	return false
}

func countTokens(text string) int {
	return len(strings.Fields(text))
}

// segmentsFor splits text into one segment per sentence-sized chunk of
// eight words, timed at a steady speaking rate.
func segmentsFor(text string) []types.Segment {
	words := strings.Fields(text)
	var segments []types.Segment
	start := 0.0
	for i := 0; i < len(words); i += 8 {
		end := min(i+8, len(words))
		chunk := words[i:end]
		stop := start + float64(len(chunk))/wordsPerSecond
		segments = append(segments, types.Segment{
			ID:    len(segments),
			Start: start,
			End:   stop,
			Text:  strings.Join(chunk, " "),
		})
		start = stop
	}
	if len(segments) == 0 {
		segments = append(segments, types.Segment{})
	}
	return segments
}

func wordsFor(text string) []types.Word {
	fields := strings.Fields(text)
	words := make([]types.Word, 0, len(fields))
	for i, w := range fields {
		start := float64(i) / wordsPerSecond
		words = append(words, types.Word{Word: w, Start: start, End: start + 1/wordsPerSecond})
	}
	return words
}

func srtTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)
	ms := int(d % time.Second / time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms)
}
