package types

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTranscriptionRequestBuilder(t *testing.T) {
	Convey("Build requires a source", t, func() {
		req, err := NewTranscriptionRequestBuilder().Language("en").Build()
		So(err, ShouldNotBeNil)
		So(req.IsZero(), ShouldBeTrue)

		var vErr *ValidationError
		So(errors.As(err, &vErr), ShouldBeTrue)
		So(vErr.Field, ShouldEqual, "source")
	})

	Convey("Build resolves defaults", t, func() {
		req, err := NewTranscriptionRequestBuilder().Source(FromFile("talk.mp3")).Build()
		So(err, ShouldBeNil)
		So(req.IsZero(), ShouldBeFalse)
		So(req.Model(), ShouldEqual, DefaultTranscriptionModel)
		So(req.ResponseFormat(), ShouldEqual, TranscriptJSON)
		So(req.Language(), ShouldEqual, "")
		So(req.Source(), ShouldResemble, FromFile("talk.mp3"))

		_, ok := req.Temperature()
		So(ok, ShouldBeFalse)
	})

	Convey("Build rejects invalid options with the offending field", t, func() {
		audio := FromBytes("clip.wav", []byte{1, 2, 3})
		cases := []struct {
			name    string
			builder *TranscriptionRequestBuilder
			field   string
		}{
			{"blank path", NewTranscriptionRequestBuilder().Source(FromFile(" ")), "source"},
			{"empty bytes", NewTranscriptionRequestBuilder().Source(FromBytes("clip.wav", nil)), "source"},
			{"nameless bytes", NewTranscriptionRequestBuilder().Source(FromBytes("", []byte{1})), "source"},
			{"blank url", NewTranscriptionRequestBuilder().Source(FromURL("")), "source"},
			{"pointer source", NewTranscriptionRequestBuilder().Source(&FileSource{Path: "a.wav"}), "source"},
			{"blank model", NewTranscriptionRequestBuilder().Source(audio).Model(""), "model"},
			{"long language", NewTranscriptionRequestBuilder().Source(audio).Language("english"), "language"},
			{"numeric language", NewTranscriptionRequestBuilder().Source(audio).Language("e1"), "language"},
			{"format", NewTranscriptionRequestBuilder().Source(audio).ResponseFormat("mp3"), "response_format"},
			{"temperature", NewTranscriptionRequestBuilder().Source(audio).Temperature(1.5), "temperature"},
			{"granularity value", NewTranscriptionRequestBuilder().Source(audio).
				ResponseFormat(TranscriptVerboseJSON).TimestampGranularities("char"), "timestamp_granularities"},
			{"granularity without verbose_json", NewTranscriptionRequestBuilder().Source(audio).
				TimestampGranularities(GranularityWord), "timestamp_granularities"},
			{"url with text format", NewTranscriptionRequestBuilder().Source(FromURL("https://a.example/x.mp3")).
				ResponseFormat(TranscriptText), "response_format"},
			{"url with verbose_json", NewTranscriptionRequestBuilder().Source(FromURL("https://a.example/x.mp3")).
				ResponseFormat(TranscriptVerboseJSON).TimestampGranularities(GranularityWord), "response_format"},
			{"url with granularities", NewTranscriptionRequestBuilder().Source(FromURL("https://a.example/x.mp3")).
				TimestampGranularities(GranularitySegment), "timestamp_granularities"},
		}

		for _, tc := range cases {
			Convey(tc.name, func() {
				_, err := tc.builder.Build()
				So(err, ShouldNotBeNil)

				var vErr *ValidationError
				So(errors.As(err, &vErr), ShouldBeTrue)
				So(vErr.Field, ShouldEqual, tc.field)
			})
		}
	})

	Convey("Options are normalised and copied", t, func() {
		data := []byte("RIFF....WAVE")
		req, err := NewTranscriptionRequestBuilder().
			Source(FromBytes("clip.wav", data)).
			Language(" EN ").
			Prompt("names: Ada, Grace").
			Temperature(0).
			ResponseFormat(TranscriptVerboseJSON).
			TimestampGranularities(GranularityWord, GranularitySegment).
			Build()
		So(err, ShouldBeNil)
		So(req.Language(), ShouldEqual, "en")
		So(req.Prompt(), ShouldEqual, "names: Ada, Grace")
		So(req.TimestampGranularities(), ShouldResemble, []TimestampGranularity{GranularityWord, GranularitySegment})

		temp, ok := req.Temperature()
		So(ok, ShouldBeTrue)
		So(temp, ShouldEqual, 0.0)

		data[0] = 'X'
		src, ok := req.Source().(BytesSource)
		So(ok, ShouldBeTrue)
		So(string(src.Data), ShouldEqual, "RIFF....WAVE")

		src.Data[1] = 'Y'
		again := req.Source().(BytesSource)
		So(string(again.Data), ShouldEqual, "RIFF....WAVE")
	})

	Convey("URL sources are accepted as-is at build time", t, func() {
		req, err := NewTranscriptionRequestBuilder().Source(FromURL("not a url")).Build()
		So(err, ShouldBeNil)
		So(req.Source(), ShouldResemble, FromURL("not a url"))

		req, err = NewTranscriptionRequestBuilder().Source(FromURL("https://a.example/x.mp3")).
			ResponseFormat(TranscriptJSON).Build()
		So(err, ShouldBeNil)
		So(req.ResponseFormat(), ShouldEqual, TranscriptJSON)
	})
}

func TestTranscriptFormat(t *testing.T) {
	Convey("Only json formats are JSON documents", t, func() {
		So(TranscriptJSON.IsJSON(), ShouldBeTrue)
		So(TranscriptVerboseJSON.IsJSON(), ShouldBeTrue)
		So(TranscriptText.IsJSON(), ShouldBeFalse)
		So(TranscriptSRT.IsJSON(), ShouldBeFalse)
		So(TranscriptVTT.IsJSON(), ShouldBeFalse)
	})
}
