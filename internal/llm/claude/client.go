// Package claude implements triage.Provider on the Anthropic Messages API.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/switchboard/internal/tools"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

// Client implements triage.Provider for Claude.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a Claude client for model. SDK retries are disabled; the
// triage engine owns the retry policy for throttled calls. Extra options
// are applied after the defaults.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	return &Client{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// Send calls the Messages API. Errors are tagged with a triage failure kind.
func (c *Client) Send(ctx context.Context, req *triage.LLMRequest) (*triage.LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toSDKMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toSDKTools(req.Tools)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, tagError(err)
	}
	return fromSDKResponse(msg), nil
}

// tagError maps API status codes and transport failures to failure kinds.
func tagError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, 529:
			return triage.Tag(triage.KindThrottled, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return triage.Tag(triage.KindUnauthorized, err)
		case http.StatusNotFound, http.StatusServiceUnavailable:
			return triage.Tag(triage.KindUnavailable, err)
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
			return triage.Tag(triage.KindBadRequest, err)
		default:
			return triage.Tag(triage.KindUnknown, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return triage.Tag(triage.KindConnectivity, err)
	}
	return fmt.Errorf("claude: %w", err)
}

func toSDKMessages(msgs []triage.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case "text":
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case "tool_use":
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, input, b.Name))
			case "tool_result":
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		out = append(out, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(m.Role),
			Content: blocks,
		})
	}
	return out
}

type inputSchema struct {
	Properties any      `json:"properties"`
	Required   []string `json:"required"`
}

func toSDKTools(defs []tools.ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema inputSchema
		_ = json.Unmarshal(d.InputSchema, &schema)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}
	return out
}

func fromSDKResponse(msg *anthropic.Message) *triage.LLMResponse {
	content := make([]triage.ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			content = append(content, triage.ContentBlock{Type: "text", Text: b.Text})
		case "tool_use":
			content = append(content, triage.ContentBlock{
				Type:  "tool_use",
				ID:    b.ID,
				Name:  b.Name,
				Input: b.Input,
			})
		}
	}
	return &triage.LLMResponse{
		Content:    content,
		StopReason: triage.StopReason(msg.StopReason),
		Usage: triage.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		Model: string(msg.Model),
	}
}
