package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"deepinfra-go/pkg/types"
)

// ChatCompletion sends req to the chat completions endpoint and waits for
// the full reply.
func (c *Client) ChatCompletion(ctx context.Context, req types.ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.IsZero() {
		return nil, &types.ValidationError{Field: "request", Reason: "request was not built"}
	}

	httpReq, err := c.newJSONRequest(ctx, c.endpoint(chatCompletionsPath), req)
	if err != nil {
		return nil, err
	}

	status, body, err := c.send(ctx, opChatCompletion, httpReq)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, parseAPIError(status, body)
	}

	resp, err := decodeChatCompletion(body)
	if err != nil {
		return nil, &DecodeError{Status: status, Body: body, Err: err}
	}

	c.log.Debug().
		Str("operation", opChatCompletion).
		Str("model", resp.Model()).
		Int("choices", len(resp.Choices())).
		Int("total_tokens", resp.Usage().TotalTokens).
		Msg("chat completion decoded")

	return resp, nil
}

func (c *Client) newJSONRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	c.log.Trace().RawJSON("request_body", body).Msg("request body")
	return req, nil
}
