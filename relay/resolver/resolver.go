// Package resolver wraps the language-model call that interprets one user
// message as either free text or a structured saveLocation request.
package resolver

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	contractx "github.com/raincheckbot/raincheck/relay/contract"
)

//go:embed template/persona.txt
var personaRaw string

// Persona returns the default system instruction for the bot.
func Persona() string {
	return strings.TrimSpace(personaRaw)
}

const toolSaveLocation = "saveLocation"

type Config struct {
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey      string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model       string        `envconfig:"MODEL" split_words:"true" default:"gpt-4o"`
	Temperature float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.33"`
	MaxTokens   int64         `envconfig:"MAX_TOKENS" split_words:"true" default:"2046"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// Resolver issues exactly one chat completion per Resolve call. The persona
// is fixed at construction so tests can substitute it.
type Resolver struct {
	client      openai.Client
	model       string
	persona     string
	temperature float64
	maxTokens   int64
}

var _ contractx.IntentResolver = (*Resolver)(nil)

func New(cfg Config, persona string) (*Resolver, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api key is required", contractx.ErrValidation)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("%w: model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(persona) == "" {
		persona = Persona()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Resolver{
		client:      openai.NewClient(opts...),
		model:       model,
		persona:     strings.TrimSpace(persona),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (r *Resolver) Resolve(ctx context.Context, turnContext string) (contractx.IntentResult, error) {
	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(r.persona),
			openai.UserMessage(turnContext),
		},
		Tools: []openai.ChatCompletionToolUnionParam{
			openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
				Name:        toolSaveLocation,
				Description: openai.String("Saves the user's location"),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						"cityName":    map[string]any{"type": "string"},
						"stateName":   map[string]any{"type": "string"},
						"countryName": map[string]any{"type": "string"},
					},
					"required": []string{"cityName", "countryName"},
				},
			}),
		},
		Temperature: openai.Float(r.temperature),
		MaxTokens:   openai.Int(r.maxTokens),
	})
	if err != nil {
		return contractx.IntentResult{}, fmt.Errorf("%w: chat completion: %v", contractx.ErrResolution, err)
	}
	if len(resp.Choices) == 0 {
		return contractx.IntentResult{}, fmt.Errorf("%w: completion has no choices", contractx.ErrResolution)
	}

	msg := resp.Choices[0].Message

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		return intentFromToolCall(call.Function.Name, call.Function.Arguments), nil
	}

	if content := strings.TrimSpace(msg.Content); content != "" {
		return contractx.IntentResult{
			Kind:  contractx.IntentPlainReply,
			Reply: content,
		}, nil
	}

	return contractx.IntentResult{
		Kind: contractx.IntentUnrecognized,
		Raw:  msg.RawJSON(),
	}, nil
}

// intentFromToolCall parses a structured call selection. Malformed or
// unexpected payloads degrade to IntentUnrecognized so the conversation
// can continue.
func intentFromToolCall(name, rawArgs string) contractx.IntentResult {
	unrecognized := contractx.IntentResult{
		Kind: contractx.IntentUnrecognized,
		Raw:  fmt.Sprintf("tool=%s args=%s", name, rawArgs),
	}

	if strings.TrimSpace(name) != toolSaveLocation {
		return unrecognized
	}

	var loc contractx.SaveLocation
	if err := json.Unmarshal([]byte(rawArgs), &loc); err != nil {
		return unrecognized
	}
	loc.CityName = strings.TrimSpace(loc.CityName)
	loc.StateName = strings.TrimSpace(loc.StateName)
	loc.CountryName = strings.TrimSpace(loc.CountryName)
	if loc.CityName == "" || loc.CountryName == "" {
		return unrecognized
	}

	return contractx.IntentResult{
		Kind:     contractx.IntentSaveLocation,
		Location: &loc,
	}
}
