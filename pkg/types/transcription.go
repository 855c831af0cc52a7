package types

import (
	"strings"
)

const (
	DefaultTranscriptionModel = "openai/whisper-large-v3-turbo"
)

// TranscriptFormat selects how the provider renders the transcript.
type TranscriptFormat string

const (
	TranscriptJSON        TranscriptFormat = "json"
	TranscriptVerboseJSON TranscriptFormat = "verbose_json"
	TranscriptText        TranscriptFormat = "text"
	TranscriptSRT         TranscriptFormat = "srt"
	TranscriptVTT         TranscriptFormat = "vtt"
)

// IsJSON reports whether responses in this format are JSON documents.
func (f TranscriptFormat) IsJSON() bool {
	return f == TranscriptJSON || f == TranscriptVerboseJSON
}

// TimestampGranularity controls the level of timing detail in verbose_json output.
type TimestampGranularity string

const (
	GranularityWord    TimestampGranularity = "word"
	GranularitySegment TimestampGranularity = "segment"
)

// TranscriptionRequestBuilder accumulates transcription options.
type TranscriptionRequestBuilder struct {
	source         AudioSource
	model          *string
	language       *string
	prompt         *string
	responseFormat *TranscriptFormat
	temperature    *float64
	granularities  []TimestampGranularity
}

func NewTranscriptionRequestBuilder() *TranscriptionRequestBuilder {
	return &TranscriptionRequestBuilder{}
}

func (b *TranscriptionRequestBuilder) Source(src AudioSource) *TranscriptionRequestBuilder {
	b.source = src
	return b
}

func (b *TranscriptionRequestBuilder) Model(model string) *TranscriptionRequestBuilder {
	b.model = &model
	return b
}

// Language sets the ISO-639-1 language of the input audio.
func (b *TranscriptionRequestBuilder) Language(lang string) *TranscriptionRequestBuilder {
	b.language = &lang
	return b
}

func (b *TranscriptionRequestBuilder) Prompt(prompt string) *TranscriptionRequestBuilder {
	b.prompt = &prompt
	return b
}

func (b *TranscriptionRequestBuilder) ResponseFormat(f TranscriptFormat) *TranscriptionRequestBuilder {
	b.responseFormat = &f
	return b
}

func (b *TranscriptionRequestBuilder) Temperature(v float64) *TranscriptionRequestBuilder {
	b.temperature = &v
	return b
}

func (b *TranscriptionRequestBuilder) TimestampGranularities(g ...TimestampGranularity) *TranscriptionRequestBuilder {
	b.granularities = append([]TimestampGranularity(nil), g...)
	return b
}

// Build checks the source and option ranges and resolves defaults.
func (b *TranscriptionRequestBuilder) Build() (TranscriptionRequest, error) {
	req := TranscriptionRequest{
		model:          DefaultTranscriptionModel,
		responseFormat: TranscriptJSON,
	}

	switch src := b.source.(type) {
	case nil:
		return TranscriptionRequest{}, invalid("source", "an audio source is required")
	case FileSource:
		if strings.TrimSpace(src.Path) == "" {
			return TranscriptionRequest{}, invalid("source", "file path must not be blank")
		}
		req.source = src
	case BytesSource:
		if strings.TrimSpace(src.FileName) == "" {
			return TranscriptionRequest{}, invalid("source", "file name must not be blank")
		}
		if len(src.Data) == 0 {
			return TranscriptionRequest{}, invalid("source", "audio bytes must not be empty")
		}
		req.source = BytesSource{FileName: src.FileName, Data: append([]byte(nil), src.Data...)}
	case URLSource:
		if strings.TrimSpace(src.URL) == "" {
			return TranscriptionRequest{}, invalid("source", "url must not be blank")
		}
		req.source = src
	default:
		return TranscriptionRequest{}, invalid("source", "unsupported source type %T", src)
	}

	if b.model != nil {
		req.model = strings.TrimSpace(*b.model)
		if req.model == "" {
			return TranscriptionRequest{}, invalid("model", "must not be blank")
		}
	}

	if b.language != nil {
		lang := strings.ToLower(strings.TrimSpace(*b.language))
		if !isLanguageCode(lang) {
			return TranscriptionRequest{}, invalid("language", "must be an ISO-639-1 code, got %q", *b.language)
		}
		req.language = lang
	}

	if b.prompt != nil {
		req.prompt = *b.prompt
	}

	if b.responseFormat != nil {
		switch *b.responseFormat {
		case TranscriptJSON, TranscriptVerboseJSON, TranscriptText, TranscriptSRT, TranscriptVTT:
			req.responseFormat = *b.responseFormat
		default:
			return TranscriptionRequest{}, invalid("response_format", "unsupported format %q", *b.responseFormat)
		}
	}
	// The inference endpoint used for URL sources only answers in JSON.
	if _, ok := req.source.(URLSource); ok && req.responseFormat != TranscriptJSON {
		return TranscriptionRequest{}, invalid("response_format", "url sources only support %q, got %q", TranscriptJSON, req.responseFormat)
	}

	if b.temperature != nil {
		if !inRange(*b.temperature, 0, 1) {
			return TranscriptionRequest{}, invalid("temperature", "must be between 0 and 1, got %v", *b.temperature)
		}
		v := *b.temperature
		req.temperature = &v
	}

	for _, g := range b.granularities {
		if g != GranularityWord && g != GranularitySegment {
			return TranscriptionRequest{}, invalid("timestamp_granularities", "unsupported granularity %q", g)
		}
	}
	if len(b.granularities) > 0 {
		if req.responseFormat != TranscriptVerboseJSON {
			return TranscriptionRequest{}, invalid("timestamp_granularities", "require response_format %q", TranscriptVerboseJSON)
		}
		req.granularities = append([]TimestampGranularity(nil), b.granularities...)
	}

	return req, nil
}

// TranscriptionRequest is a validated, immutable transcription request.
type TranscriptionRequest struct {
	source         AudioSource
	model          string
	language       string
	prompt         string
	responseFormat TranscriptFormat
	temperature    *float64
	granularities  []TimestampGranularity
}

// IsZero reports whether r was not produced by a successful Build.
func (r TranscriptionRequest) IsZero() bool {
	return r.source == nil
}

// Source returns the audio source. Byte sources are returned as a copy.
func (r TranscriptionRequest) Source() AudioSource {
	if src, ok := r.source.(BytesSource); ok {
		return BytesSource{FileName: src.FileName, Data: append([]byte(nil), src.Data...)}
	}
	return r.source
}

func (r TranscriptionRequest) Model() string                    { return r.model }
func (r TranscriptionRequest) Language() string                 { return r.language }
func (r TranscriptionRequest) Prompt() string                   { return r.prompt }
func (r TranscriptionRequest) ResponseFormat() TranscriptFormat { return r.responseFormat }

// Temperature returns the sampling temperature and whether one was set.
func (r TranscriptionRequest) Temperature() (float64, bool) {
	if r.temperature == nil {
		return 0, false
	}
	return *r.temperature, true
}

func (r TranscriptionRequest) TimestampGranularities() []TimestampGranularity {
	return append([]TimestampGranularity(nil), r.granularities...)
}

func isLanguageCode(lang string) bool {
	if len(lang) < 2 || len(lang) > 3 {
		return false
	}
	for _, r := range lang {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
