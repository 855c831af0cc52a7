package types

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMessageJSON(t *testing.T) {
	Convey("Messages encode in the OpenAI-compatible shape", t, func() {
		Convey("text content is a bare string", func() {
			data, err := json.Marshal(UserMessage("hello"))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, `{"role":"user","content":"hello"}`)
		})

		Convey("multimodal content is an array of typed parts", func() {
			msg := UserParts(
				TextPart{Text: "what is this?"},
				ImagePart{URL: "https://example.com/cat.png", Detail: "low"},
			)
			data, err := json.Marshal(msg)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual,
				`{"role":"user","content":[{"type":"text","text":"what is this?"},{"type":"image_url","image_url":{"url":"https://example.com/cat.png","detail":"low"}}]}`)
		})

		Convey("tool messages carry the call id", func() {
			data, err := json.Marshal(ToolMessage("call_1", `{"temp":21}`))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, `{"role":"tool","content":"{\"temp\":21}","tool_call_id":"call_1"}`)
		})

		Convey("nil content encodes as null", func() {
			msg := Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Type: "function", Function: FunctionCall{Name: "f", Arguments: "{}"}}}}
			data, err := json.Marshal(msg)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `"content":null`)
			So(string(data), ShouldContainSubstring, `"tool_calls":[{"id":"c1"`)
		})
	})

	Convey("Messages decode every content shape", t, func() {
		Convey("string content", func() {
			var msg Message
			So(json.Unmarshal([]byte(`{"role":"assistant","content":"hi there"}`), &msg), ShouldBeNil)
			So(msg.Role, ShouldEqual, RoleAssistant)
			So(msg.Content, ShouldEqual, Text("hi there"))
			So(msg.TextContent(), ShouldEqual, "hi there")
		})

		Convey("array content round-trips", func() {
			original := UserParts(TextPart{Text: "a"}, ImagePart{URL: "data:image/png;base64,AAAA"}, TextPart{Text: "b"})
			data, err := json.Marshal(original)
			So(err, ShouldBeNil)

			var decoded Message
			So(json.Unmarshal(data, &decoded), ShouldBeNil)
			So(decoded, ShouldResemble, original)
			So(decoded.TextContent(), ShouldEqual, "ab")
		})

		Convey("null content with tool calls", func() {
			var msg Message
			raw := `{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"lookup","arguments":"{\"q\":1}"}}]}`
			So(json.Unmarshal([]byte(raw), &msg), ShouldBeNil)
			So(msg.Content, ShouldBeNil)
			So(msg.ToolCalls, ShouldHaveLength, 1)
			So(msg.ToolCalls[0].Function.Name, ShouldEqual, "lookup")
			So(msg.Validate(), ShouldBeNil)
		})

		Convey("unknown part types are rejected", func() {
			var msg Message
			err := json.Unmarshal([]byte(`{"role":"user","content":[{"type":"audio"}]}`), &msg)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "audio")
		})
	})
}

func TestMessageValidate(t *testing.T) {
	Convey("Validate checks role and content", t, func() {
		So(SystemMessage("be brief").Validate(), ShouldBeNil)
		So(UserParts(TextPart{Text: "x"}).Validate(), ShouldBeNil)

		So(NewMessage("narrator", Text("x")).Validate(), ShouldNotBeNil)
		So(UserMessage("   ").Validate(), ShouldNotBeNil)
		So(NewMessage(RoleUser, nil).Validate(), ShouldNotBeNil)
		So(UserParts().Validate(), ShouldNotBeNil)
		So(UserParts(ImagePart{}).Validate(), ShouldNotBeNil)
		So(ToolMessage("", "result").Validate(), ShouldNotBeNil)
	})
}
