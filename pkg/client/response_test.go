package client

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"deepinfra-go/pkg/types"
)

func TestDecodeChatCompletion(t *testing.T) {
	Convey("decodeChatCompletion maps a provider reply", t, func() {
		body := []byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "deepseek-ai/DeepSeek-V3",
			"choices": [
				{"index": 0, "message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"},
				{"index": 1, "message": {"role": "assistant", "content": null, "tool_calls": [{"id": "c1", "type": "function", "function": {"name": "f", "arguments": "{}"}}]}, "finish_reason": "tool_calls"}
			],
			"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12, "estimated_cost": 0.0001}
		}`)

		resp, err := decodeChatCompletion(body)
		So(err, ShouldBeNil)
		So(resp.ID(), ShouldEqual, "chatcmpl-123")
		So(resp.Object(), ShouldEqual, "chat.completion")
		So(resp.Model(), ShouldEqual, "deepseek-ai/DeepSeek-V3")
		So(resp.Created(), ShouldEqual, time.Unix(1700000000, 0).UTC())

		choices := resp.Choices()
		So(choices, ShouldHaveLength, 2)
		So(choices[0].FinishReason, ShouldEqual, types.FinishStop)
		So(choices[1].FinishReason, ShouldEqual, types.FinishToolCalls)
		So(choices[1].Message.ToolCalls[0].Function.Name, ShouldEqual, "f")

		first, ok := resp.FirstMessage()
		So(ok, ShouldBeTrue)
		So(first.TextContent(), ShouldEqual, "Hello!")

		usage := resp.Usage()
		So(usage.PromptTokens, ShouldEqual, 9)
		So(usage.CompletionTokens, ShouldEqual, 3)
		So(usage.TotalTokens, ShouldEqual, 12)
		So(usage.EstimatedCost, ShouldNotBeNil)
		So(*usage.EstimatedCost, ShouldAlmostEqual, 0.0001)
	})

	Convey("Returned choices are copies", t, func() {
		resp, err := decodeChatCompletion([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"a","tool_calls":[{"id":"c1","type":"function","function":{"name":"f","arguments":"{}"}}]}}]}`))
		So(err, ShouldBeNil)

		choices := resp.Choices()
		choices[0].Message.ToolCalls[0].ID = "changed"
		choices[0].Message = types.AssistantMessage("b")

		first, _ := resp.FirstMessage()
		So(first.TextContent(), ShouldEqual, "a")
		So(first.ToolCalls[0].ID, ShouldEqual, "c1")
	})

	Convey("An empty choices array is valid", t, func() {
		resp, err := decodeChatCompletion([]byte(`{"id":"x","choices":[]}`))
		So(err, ShouldBeNil)
		_, ok := resp.FirstMessage()
		So(ok, ShouldBeFalse)
	})

	Convey("Missing choices is a decode failure", t, func() {
		_, err := decodeChatCompletion([]byte(`{"id":"x","usage":{"total_tokens":1}}`))
		So(err, ShouldNotBeNil)
		So(errors.Is(err, ErrMissingField), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "choices")
	})

	Convey("Malformed JSON is a decode failure", t, func() {
		_, err := decodeChatCompletion([]byte(`<html>`))
		So(err, ShouldNotBeNil)
	})
}

func TestDecodeTranscription(t *testing.T) {
	Convey("decodeTranscription handles verbose_json", t, func() {
		body := []byte(`{
			"text": "hello world",
			"language": "en",
			"duration": 1.5,
			"segments": [{"id": 0, "start": 0, "end": 1.5, "text": "hello world"}],
			"words": [{"word": "hello", "start": 0, "end": 0.7}, {"word": "world", "start": 0.8, "end": 1.5}]
		}`)

		resp, err := decodeTranscription(types.TranscriptVerboseJSON, body)
		So(err, ShouldBeNil)
		So(resp.Text(), ShouldEqual, "hello world")
		So(resp.Language(), ShouldEqual, "en")
		So(resp.Duration(), ShouldEqual, 1500*time.Millisecond)
		So(resp.Segments(), ShouldResemble, []types.Segment{{ID: 0, Start: 0, End: 1.5, Text: "hello world"}})
		So(resp.Words(), ShouldHaveLength, 2)

		words := resp.Words()
		words[0].Word = "changed"
		So(resp.Words()[0].Word, ShouldEqual, "hello")
	})

	Convey("Native inference replies report input length in milliseconds", t, func() {
		body := []byte(`{"text":"hi","input_length_ms":2500,"request_id":"req-1","segments":[]}`)
		resp, err := decodeTranscription(types.TranscriptJSON, body)
		So(err, ShouldBeNil)
		So(resp.Duration(), ShouldEqual, 2500*time.Millisecond)
		So(resp.RequestID(), ShouldEqual, "req-1")
		So(resp.Segments(), ShouldBeEmpty)
	})

	Convey("Plain formats use the body verbatim", t, func() {
		resp, err := decodeTranscription(types.TranscriptText, []byte("hello world\n"))
		So(err, ShouldBeNil)
		So(resp.Text(), ShouldEqual, "hello world")

		srt := "1\n00:00:00,000 --> 00:00:01,500\nhello world\n"
		resp, err = decodeTranscription(types.TranscriptSRT, []byte(srt))
		So(err, ShouldBeNil)
		So(resp.Text(), ShouldEqual, "1\n00:00:00,000 --> 00:00:01,500\nhello world")
	})

	Convey("Missing text is a decode failure", t, func() {
		_, err := decodeTranscription(types.TranscriptJSON, []byte(`{"language":"en"}`))
		So(errors.Is(err, ErrMissingField), ShouldBeTrue)

		_, err = decodeTranscription(types.TranscriptJSON, []byte(`not json`))
		So(err, ShouldNotBeNil)
	})
}

// exportedResponseProducers lists exported functions and methods in dir
// whose results mention one of the response types.
func exportedResponseProducers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	var found []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, 0)
		if err != nil {
			return nil, err
		}
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !fn.Name.IsExported() || fn.Type.Results == nil {
				continue
			}
			for _, result := range fn.Type.Results.List {
				var ident string
				ast.Inspect(result.Type, func(n ast.Node) bool {
					if id, ok := n.(*ast.Ident); ok {
						ident = id.Name
					}
					return true
				})
				if ident == "ChatCompletionResponse" || ident == "TranscriptionResponse" {
					found = append(found, fn.Name.Name)
				}
			}
		}
	}
	return found, nil
}

func TestResponsesCannotBeFabricated(t *testing.T) {
	Convey("Only the client's operations produce responses", t, func() {
		producers, err := exportedResponseProducers(".")
		So(err, ShouldBeNil)
		So(producers, ShouldResemble, []string{"AudioTranscription", "ChatCompletion"})

		producers, err = exportedResponseProducers(filepath.Join("..", "types"))
		So(err, ShouldBeNil)
		So(producers, ShouldBeEmpty)
	})

	Convey("Response fields are not settable from other packages", t, func() {
		for _, typ := range []reflect.Type{
			reflect.TypeOf(ChatCompletionResponse{}),
			reflect.TypeOf(TranscriptionResponse{}),
		} {
			for i := 0; i < typ.NumField(); i++ {
				So(typ.Field(i).IsExported(), ShouldBeFalse)
			}
		}
	})
}
