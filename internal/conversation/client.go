// Package conversation drives the command state machine from natural
// language: it sends the transcript to an OpenAI-compatible Responses API
// with the command tool set and executes whichever command the model calls.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"

	"smarttodo/internal/apperr"
)

// Round is one model call: full-context transcript plus the tool set.
// The whole history is re-sent every round instead of relying on
// previous_response_id, which proxies with store=false do not honour.
type Round struct {
	Instructions string
	Input        []map[string]any
	Tools        []ToolSpec
}

// Invocation is the single function call extracted from a model reply.
type Invocation struct {
	CallID    string
	Name      string
	Arguments json.RawMessage
}

// CommandAPI yields the next command invocation for a round. A nil
// invocation with nil error means the model replied with text only.
type CommandAPI interface {
	NextCommand(ctx context.Context, round Round) (*Invocation, error)
}

type ClientConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// ResponsesClient implements CommandAPI against the Responses API.
type ResponsesClient struct {
	cfg     ClientConfig
	service responses.ResponseService
}

func NewResponsesClient(cfg ClientConfig, httpClient *http.Client) *ResponsesClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{option.WithHTTPClient(httpClient)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	return &ResponsesClient{
		cfg:     cfg,
		service: responses.NewResponseService(opts...),
	}
}

func (c *ResponsesClient) NextCommand(ctx context.Context, round Round) (*Invocation, error) {
	params, err := c.toSDKRequest(round)
	if err != nil {
		return nil, apperr.Transport(err, "build responses request")
	}
	var rawResp *http.Response
	var rawBody []byte
	_, err = c.service.New(
		ctx,
		params,
		option.WithResponseInto(&rawResp),
		option.WithResponseBodyInto(&rawBody),
	)
	if err != nil {
		return nil, apperr.Transport(c.describeRequestError(err, rawResp), "responses request failed")
	}
	if len(rawBody) == 0 {
		return nil, apperr.Transport(nil, "responses api returned empty body")
	}
	return extractInvocation(rawBody)
}

func (c *ResponsesClient) toSDKRequest(round Round) (responses.ResponseNewParams, error) {
	var out responses.ResponseNewParams
	if model := strings.TrimSpace(c.cfg.Model); model != "" {
		out.Model = model
	}
	if instructions := strings.TrimSpace(round.Instructions); instructions != "" {
		out.Instructions = param.NewOpt(instructions)
	}
	out.Store = param.NewOpt(false)
	items := make(responses.ResponseInputParam, 0, len(round.Input))
	for i, rawItem := range round.Input {
		raw, err := json.Marshal(rawItem)
		if err != nil {
			return responses.ResponseNewParams{}, fmt.Errorf("marshal input item[%d]: %w", i, err)
		}
		var item responses.ResponseInputItemUnionParam
		if err := json.Unmarshal(raw, &item); err != nil {
			return responses.ResponseNewParams{}, fmt.Errorf("decode input item[%d]: %w", i, err)
		}
		items = append(items, item)
	}
	out.Input = responses.ResponseNewParamsInputUnion{OfInputItemList: items}
	if len(round.Tools) > 0 {
		tools := make([]responses.ToolUnionParam, 0, len(round.Tools))
		for i, spec := range round.Tools {
			raw, err := json.Marshal(spec)
			if err != nil {
				return responses.ResponseNewParams{}, fmt.Errorf("marshal tool[%d]: %w", i, err)
			}
			var tool responses.ToolUnionParam
			if err := json.Unmarshal(raw, &tool); err != nil {
				return responses.ResponseNewParams{}, fmt.Errorf("decode tool[%d]: %w", i, err)
			}
			tools = append(tools, tool)
		}
		out.Tools = tools
	}
	return out, nil
}

func (c *ResponsesClient) describeRequestError(err error, rawResp *http.Response) error {
	var apiErr *responses.Error
	if errors.As(err, &apiErr) {
		resp := rawResp
		if resp == nil {
			resp = apiErr.Response
		}
		body := strings.TrimSpace(apiErr.RawJSON())
		if body == "" {
			body = strings.TrimSpace(err.Error())
		}
		return fmt.Errorf("responses api status %d request_id=%q response=%s",
			apiErr.StatusCode, responseRequestID(resp), body)
	}
	return err
}

func responseRequestID(resp *http.Response) string {
	if resp == nil || resp.Header == nil {
		return ""
	}
	for _, key := range []string{"x-request-id", "request-id", "openai-request-id", "x-openai-request-id"} {
		if value := strings.TrimSpace(resp.Header.Get(key)); value != "" {
			return value
		}
	}
	return ""
}

type responseItem struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type responsePayload struct {
	ID     string         `json:"id"`
	Output []responseItem `json:"output"`
}

// extractInvocation takes the first function_call output item; the system
// prompt demands exactly one per reply, extra calls are ignored.
func extractInvocation(raw []byte) (*Invocation, error) {
	var decoded responsePayload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apperr.Transport(err, "decode responses body")
	}
	for _, item := range decoded.Output {
		if strings.TrimSpace(item.Type) != "function_call" {
			continue
		}
		callID := strings.TrimSpace(item.CallID)
		if callID == "" {
			callID = strings.TrimSpace(item.ID)
		}
		return &Invocation{
			CallID:    callID,
			Name:      strings.TrimSpace(item.Name),
			Arguments: json.RawMessage(item.Arguments),
		}, nil
	}
	return nil, nil
}
