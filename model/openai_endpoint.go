package model

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
)

// openAIEndpointClient adapts one OpenAI-compatible chat-completions
// endpoint to the Client interface. Grounded structurally on the teacher's
// features/model/openai/client.go (Complete/Stream/translateResponse
// shape), but built on github.com/openai/openai-go — the library the
// teacher's own go.mod actually depends on — rather than the
// sashabaranov/go-openai package that file imports, which is not a real
// dependency of anything in the retrieval pack.
type openAIEndpointClient struct {
	client *openai.Client
	model  string
}

// newOpenAIEndpointClient constructs a Client for one endpoint. apiKey may
// be empty; SPEC_FULL.md §4.1 requires the client tolerate a placeholder key
// for local LLM servers that require no authentication.
func newOpenAIEndpointClient(baseURL, apiKey, modelName string, timeout httpTimeout) *openAIEndpointClient {
	key := apiKey
	if key == "" {
		key = "not-needed"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(baseURL),
	}
	if timeout.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(timeout.httpClient))
	}
	c := openai.NewClient(opts...)
	return &openAIEndpointClient{client: &c, model: modelName}
}

// httpTimeout bundles an *http.Client so callers can set a per-endpoint
// request timeout without importing net/http in the constructor signature.
type httpTimeout struct {
	httpClient *http.Client
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (c *openAIEndpointClient) buildParams(req *Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if len(req.ResponseJSONSchema) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(req.ResponseJSONSchema, &schema); err == nil {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
					JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   "agentrt_structured_output",
						Schema: schema,
						Strict: openai.Bool(true),
					},
				},
			}
		}
	}
	return params
}

// Complete issues a non-streaming chat completion request.
func (c *openAIEndpointClient) Complete(ctx context.Context, req *Request) (string, error) {
	params := c.buildParams(req)
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("llm response contained no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// Stream issues a streaming chat completion request, forwarding each delta
// chunk on the returned channel. The channel is closed when the stream ends
// or the context is cancelled.
func (c *openAIEndpointClient) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	params := c.buildParams(req)
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	out := make(chan Chunk)
	go pumpStream(ctx, stream, out)
	return out, nil
}

func pumpStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], out chan<- Chunk) {
	defer close(out)
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		select {
		case out <- Chunk{Delta: delta}:
		case <-ctx.Done():
			return
		}
	}
	select {
	case out <- Chunk{Done: true}:
	case <-ctx.Done():
	}
}
