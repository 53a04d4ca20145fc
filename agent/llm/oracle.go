package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openaisdk "github.com/openai/openai-go"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
	openrouterx "github.com/kasuwahq/support-agent/pkg/openrouter"
)

const querySystemPrompt = `You translate a customer support question into ONE read-only PostgreSQL SELECT statement.
Use only the tables and columns in the provided schema. Never mutate data.
Cap results with LIMIT and order them deterministically. Reply with SQL only, no prose.`

const responseSystemPrompt = `You are a support assistant for a Nigerian e-commerce platform.
Render the provided fact bundle into a short, clear customer reply in the requested tone.
Convey every fact; invent nothing. Amounts are NGN.`

/* ------------------------------ Query oracle ------------------------------ */

// QueryOracle generates SQL with an eino chat model behind a hard timeout.
type QueryOracle struct {
	model   einomodel.ToolCallingChatModel
	timeout time.Duration
}

var _ contractx.QueryOracle = (*QueryOracle)(nil)

func NewQueryOracle(ctx context.Context, cfg Config) (*QueryOracle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	builder := cfg.openRouterFor(cfg.QueryModel, cfg.QueryTimeout)
	m, err := builder.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create query oracle model: %v", contractx.ErrQueryGeneration, err)
	}
	return &QueryOracle{model: m, timeout: cfg.QueryTimeout}, nil
}

func (o *QueryOracle) GenerateQuery(
	ctx context.Context,
	utterance string,
	intent contractx.Intent,
	entities contractx.EntityBag,
	schemaDescription string,
) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"utterance": utterance,
		"intent":    intent,
		"entities":  entities,
		"schema":    schemaDescription,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal oracle payload: %v", contractx.ErrQueryGeneration, err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	msg, err := o.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(querySystemPrompt),
		schema.UserMessage(string(payload)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrQueryGeneration, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: oracle returned empty content", contractx.ErrQueryGeneration)
	}
	return msg.Content, nil
}

/* ----------------------------- Response oracle ---------------------------- */

// ResponseOracle renders fact bundles into prose via the raw OpenAI SDK.
// Best-effort: callers degrade to a deterministic rendering on error.
type ResponseOracle struct {
	client  *openaisdk.Client
	model   string
	timeout time.Duration
}

var _ contractx.ResponseOracle = (*ResponseOracle)(nil)

func NewResponseOracle(cfg Config) (*ResponseOracle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	builder := cfg.openRouterFor(cfg.ResponseModel, cfg.ResponseTimeout)
	client := openrouterx.NewClient(builder)
	if client == nil {
		return nil, fmt.Errorf("%w: response oracle client", contractx.ErrValidation)
	}
	return &ResponseOracle{
		client:  client,
		model:   builder.Model,
		timeout: cfg.ResponseTimeout,
	}, nil
}

func (o *ResponseOracle) Compose(ctx context.Context, facts contractx.ResponseFacts) (string, error) {
	payload, err := json.Marshal(facts)
	if err != nil {
		return "", fmt.Errorf("marshal fact bundle: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	completion, err := o.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(o.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(responseSystemPrompt),
			openaisdk.UserMessage(string(payload)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("response oracle: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("response oracle: empty completion")
	}

	reply := strings.TrimSpace(completion.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("response oracle: empty reply")
	}
	return reply, nil
}
