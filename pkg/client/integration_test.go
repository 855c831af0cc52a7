package client

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sync/errgroup"

	"deepinfra-go/internal/fakeprovider"
	"deepinfra-go/pkg/types"
)

func newStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := fakeprovider.New(fakeprovider.Options{Token: testToken})
	if err != nil {
		t.Fatalf("fakeprovider.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestAgainstStubProvider(t *testing.T) {
	ts := newStubServer(t)

	Convey("Chat completions round-trip through the stub", t, func() {
		c, err := New(testToken, WithBaseURL(ts.URL))
		So(err, ShouldBeNil)

		req, err := types.NewChatCompletionRequestBuilder().
			Messages(types.SystemMessage("be brief"), types.UserMessage("ping pong")).
			N(2).
			Build()
		So(err, ShouldBeNil)

		resp, err := c.ChatCompletion(context.Background(), req)
		So(err, ShouldBeNil)
		So(resp.ID(), ShouldStartWith, "chatcmpl-")
		So(resp.Model(), ShouldEqual, types.DefaultChatModel)
		So(resp.Choices(), ShouldHaveLength, 2)

		msg, _ := resp.FirstMessage()
		So(msg.Role, ShouldEqual, types.RoleAssistant)
		So(msg.TextContent(), ShouldEqual, "echo: ping pong")
		So(resp.Usage().PromptTokens, ShouldEqual, 4)
		So(resp.Usage().TotalTokens, ShouldEqual, resp.Usage().PromptTokens+resp.Usage().CompletionTokens)
	})

	Convey("A wrong token surfaces the provider's 401 envelope", t, func() {
		c, err := New("not-the-token", WithBaseURL(ts.URL))
		So(err, ShouldBeNil)

		req, _ := types.NewChatCompletionRequestBuilder().Message(types.UserMessage("hi")).Build()
		_, err = c.ChatCompletion(context.Background(), req)

		var apiErr *APIError
		So(errors.As(err, &apiErr), ShouldBeTrue)
		So(apiErr.Kind, ShouldEqual, ProviderError)
		So(apiErr.Status, ShouldEqual, 401)
		So(apiErr.Message, ShouldEqual, "invalid token")
		So(apiErr.Code, ShouldEqual, "unauthorized")
	})

	Convey("Transcriptions of bytes, files and URLs", t, func() {
		c, err := New(testToken, WithBaseURL(ts.URL))
		So(err, ShouldBeNil)

		req, err := types.NewTranscriptionRequestBuilder().
			Source(types.FromBytes("clip.wav", make([]byte, 1024))).
			ResponseFormat(types.TranscriptVerboseJSON).
			TimestampGranularities(types.GranularityWord).
			Build()
		So(err, ShouldBeNil)

		resp, err := c.AudioTranscription(context.Background(), req)
		So(err, ShouldBeNil)
		So(resp.Text(), ShouldEqual, "transcribed 1024 bytes from clip.wav")
		So(resp.Language(), ShouldEqual, "en")
		So(resp.Segments(), ShouldNotBeEmpty)
		So(resp.Words(), ShouldHaveLength, 5)
		So(resp.Duration() > 0, ShouldBeTrue)

		req, err = types.NewTranscriptionRequestBuilder().
			Source(types.FromBytes("clip.wav", []byte("abc"))).
			ResponseFormat(types.TranscriptSRT).
			Build()
		So(err, ShouldBeNil)
		resp, err = c.AudioTranscription(context.Background(), req)
		So(err, ShouldBeNil)
		So(resp.Text(), ShouldStartWith, "1\n00:00:00,000 --> ")
		So(resp.Text(), ShouldEndWith, "transcribed 3 bytes from clip.wav")

		req, err = types.NewTranscriptionRequestBuilder().
			Source(types.FromURL("https://cdn.example.com/a.mp3")).
			Build()
		So(err, ShouldBeNil)
		resp, err = c.AudioTranscription(context.Background(), req)
		So(err, ShouldBeNil)
		So(resp.Text(), ShouldEqual, "transcribed https://cdn.example.com/a.mp3 with "+types.DefaultTranscriptionModel)
		So(resp.RequestID(), ShouldNotBeEmpty)
	})

	Convey("One client serves concurrent calls", t, func() {
		c, err := New(testToken, WithBaseURL(ts.URL))
		So(err, ShouldBeNil)

		const calls = 16
		replies := make([]string, calls)

		g, ctx := errgroup.WithContext(context.Background())
		for i := 0; i < calls; i++ {
			i := i
			g.Go(func() error {
				req, err := types.NewChatCompletionRequestBuilder().
					Message(types.UserMessage(fmt.Sprintf("call-%d", i))).
					Build()
				if err != nil {
					return err
				}
				resp, err := c.ChatCompletion(ctx, req)
				if err != nil {
					return err
				}
				msg, _ := resp.FirstMessage()
				replies[i] = msg.TextContent()
				return nil
			})
		}
		So(g.Wait(), ShouldBeNil)

		for i, reply := range replies {
			So(reply, ShouldEqual, fmt.Sprintf("echo: call-%d", i))
		}
	})
}
