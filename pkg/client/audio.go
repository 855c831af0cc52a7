package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"deepinfra-go/pkg/types"
)

const audioFormField = "file"

// AudioTranscription uploads the request's audio and returns the
// transcript. File and byte sources go to the OpenAI-compatible
// transcription endpoint; URL sources are handed to the native inference
// endpoint, which fetches the audio itself.
func (c *Client) AudioTranscription(ctx context.Context, req types.TranscriptionRequest) (*TranscriptionResponse, error) {
	if req.IsZero() {
		return nil, &types.ValidationError{Field: "request", Reason: "request was not built"}
	}

	switch src := req.Source().(type) {
	case types.URLSource:
		httpReq, err := c.newInferenceRequest(ctx, req, src)
		if err != nil {
			return nil, err
		}
		return c.transcribe(ctx, httpReq, req.ResponseFormat())

	case types.FileSource:
		file, err := os.Open(src.Path)
		if err != nil {
			return nil, fmt.Errorf("open audio file %q: %w", src.Path, err)
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat audio file %q: %w", src.Path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("open audio file %q: is a directory", src.Path)
		}

		httpReq, err := c.newUploadRequest(ctx, req, filepath.Base(src.Path), file, info.Size())
		if err != nil {
			return nil, err
		}
		return c.transcribe(ctx, httpReq, req.ResponseFormat())

	case types.BytesSource:
		httpReq, err := c.newUploadRequest(ctx, req, src.FileName, bytes.NewReader(src.Data), int64(len(src.Data)))
		if err != nil {
			return nil, err
		}
		return c.transcribe(ctx, httpReq, req.ResponseFormat())

	default:
		return nil, &types.ValidationError{Field: "source", Reason: fmt.Sprintf("unsupported source type %T", src)}
	}
}

func (c *Client) transcribe(ctx context.Context, httpReq *http.Request, format types.TranscriptFormat) (*TranscriptionResponse, error) {
	status, body, err := c.send(ctx, opAudioTranscription, httpReq)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, parseAPIError(status, body)
	}

	resp, err := decodeTranscription(format, body)
	if err != nil {
		return nil, &DecodeError{Status: status, Body: body, Err: err}
	}

	c.log.Debug().
		Str("operation", opAudioTranscription).
		Str("format", string(format)).
		Int("segments", len(resp.Segments())).
		Dur("audio_duration", resp.Duration()).
		Msg("transcription decoded")

	return resp, nil
}

// newUploadRequest streams audio as the "file" part of a multipart form.
// The preamble and closing boundary are rendered up front so the body can
// be chained around the audio reader without copying it.
func (c *Client) newUploadRequest(ctx context.Context, req types.TranscriptionRequest, fileName string, audio io.Reader, size int64) (*http.Request, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := writeTranscriptionFields(form, req); err != nil {
		return nil, err
	}
	if _, err := form.CreateFormFile(audioFormField, fileName); err != nil {
		return nil, fmt.Errorf("create multipart file part: %w", err)
	}
	preamble := bytes.Clone(buf.Bytes())

	buf.Reset()
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close multipart form: %w", err)
	}
	trailer := bytes.Clone(buf.Bytes())

	body := io.MultiReader(bytes.NewReader(preamble), audio, bytes.NewReader(trailer))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(transcriptionsPath), body)
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	httpReq.ContentLength = int64(len(preamble)) + size + int64(len(trailer))
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Accept", contentTypeJSON)

	c.log.Trace().
		Str("file_name", fileName).
		Int64("audio_bytes", size).
		Str("model", req.Model()).
		Msg("multipart upload prepared")
	return httpReq, nil
}

func writeTranscriptionFields(form *multipart.Writer, req types.TranscriptionRequest) error {
	fields := [][2]string{
		{"model", req.Model()},
		{"response_format", string(req.ResponseFormat())},
	}
	if lang := req.Language(); lang != "" {
		fields = append(fields, [2]string{"language", lang})
	}
	if prompt := req.Prompt(); prompt != "" {
		fields = append(fields, [2]string{"prompt", prompt})
	}
	if temp, ok := req.Temperature(); ok {
		fields = append(fields, [2]string{"temperature", formatFloat(temp)})
	}
	for _, g := range req.TimestampGranularities() {
		fields = append(fields, [2]string{"timestamp_granularities[]", string(g)})
	}
	return writeFields(form, fields)
}

// newInferenceRequest posts a URL reference to /v1/inference/<model>.
func (c *Client) newInferenceRequest(ctx context.Context, req types.TranscriptionRequest, src types.URLSource) (*http.Request, error) {
	audioURL, err := checkAudioURL(src.URL)
	if err != nil {
		return nil, err
	}

	fields := [][2]string{
		{"audio", audioURL},
		{"task", "transcribe"},
	}
	if lang := req.Language(); lang != "" {
		fields = append(fields, [2]string{"language", lang})
	}
	if prompt := req.Prompt(); prompt != "" {
		fields = append(fields, [2]string{"initial_prompt", prompt})
	}
	if temp, ok := req.Temperature(); ok {
		fields = append(fields, [2]string{"temperature", formatFloat(temp)})
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := writeFields(form, fields); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close multipart form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(inferencePath(req.Model())), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Accept", contentTypeJSON)
	return httpReq, nil
}

func writeFields(form *multipart.Writer, fields [][2]string) error {
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("write multipart field %s: %w", f[0], err)
		}
	}
	return nil
}

func checkAudioURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", &types.ValidationError{
			Field:  "source",
			Reason: fmt.Sprintf("audio url must be an absolute http(s) url, got %q", raw),
			Err:    err,
		}
	}
	return trimmed, nil
}

// inferencePath escapes each segment of an owner/name model id.
func inferencePath(model string) string {
	segments := strings.Split(model, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return inferencePathPrefix + strings.Join(segments, "/")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
