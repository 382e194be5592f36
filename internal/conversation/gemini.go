package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLMClient implements LLMClient using Google's Gemini API with
// function calling.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}

	return &GeminiLLMClient{
		client:  client,
		modelID: modelID,
	}, nil
}

// Complete sends a completion request to Gemini and returns the response.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := c.client.GenerativeModel(c.modelID)

	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if len(req.System) > 0 {
		systemText := strings.Join(req.System, "\n\n")
		if strings.TrimSpace(systemText) != "" {
			model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
		}
	}
	if tools := geminiTools(req.Tools); tools != nil {
		model.Tools = []*genai.Tool{tools}
	}

	history, err := geminiContents(req.Messages)
	if err != nil {
		return LLMResponse{}, err
	}
	if len(history) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini requires at least one message")
	}

	cs := model.StartChat()
	cs.History = history[:len(history)-1]
	last := history[len(history)-1]
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}
	return geminiParseResponse(resp)
}

// geminiContents maps the transcript onto user/model turns. Tool results are
// sent as function responses from the user side; adjacent turns with the
// same role are merged.
func geminiContents(in []ChatMessage) ([]*genai.Content, error) {
	var out []*genai.Content
	push := func(role string, parts []genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	for _, msg := range in {
		content := strings.TrimSpace(msg.Content)
		switch msg.Role {
		case ChatRoleSystem:
			continue
		case ChatRoleUser:
			if content != "" {
				push("user", []genai.Part{genai.Text(content)})
			}
		case ChatRoleAssistant:
			var parts []genai.Part
			if content != "" {
				parts = append(parts, genai.Text(content))
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: decodeArguments(call.Arguments)})
			}
			push("model", parts)
		case ChatRoleTool:
			parts := make([]genai.Part, 0, len(msg.ToolResults))
			for _, res := range msg.ToolResults {
				payload := map[string]any{}
				if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
					payload = map[string]any{"result": res.Content}
				}
				parts = append(parts, genai.FunctionResponse{Name: res.Name, Response: payload})
			}
			push("user", parts)
		default:
			return nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
	}
	return out, nil
}

func geminiTools(specs []ToolSpec) *genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	tool := &genai.Tool{FunctionDeclarations: make([]*genai.FunctionDeclaration, 0, len(specs))}
	for _, spec := range specs {
		schema := &genai.Schema{Type: genai.TypeObject, Properties: make(map[string]*genai.Schema, len(spec.Parameters))}
		for _, p := range spec.Parameters {
			schema.Properties[p.Name] = &genai.Schema{
				Type:        geminiType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
			}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schema,
		})
	}
	return tool
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func geminiParseResponse(resp *genai.GenerateContentResponse) (LLMResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]

	var (
		result       LLMResponse
		responseText strings.Builder
	)
	if candidate.Content != nil {
		for i, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				responseText.WriteString(string(p))
			case genai.FunctionCall:
				args, err := json.Marshal(p.Args)
				if err != nil {
					return LLMResponse{}, fmt.Errorf("conversation: gemini function args: %w", err)
				}
				result.ToolCalls = append(result.ToolCalls, ToolCall{
					ID:        fmt.Sprintf("%s-%d", p.Name, i),
					Name:      p.Name,
					Arguments: args,
				})
			}
		}
	}
	result.Text = strings.TrimSpace(responseText.String())
	result.StopReason = candidate.FinishReason.String()

	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
