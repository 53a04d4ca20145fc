package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
	openrouterx "github.com/kasuwahq/support-agent/pkg/openrouter"
)

// Config drives both oracles. Per-oracle model overrides fall back to the
// default model; timeouts are hard caps so a slow oracle never blocks a turn.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"1200"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	QueryModel      string        `envconfig:"QUERY_MODEL" split_words:"true"`
	ResponseModel   string        `envconfig:"RESPONSE_MODEL" split_words:"true"`
	QueryTimeout    time.Duration `envconfig:"QUERY_TIMEOUT" split_words:"true" default:"8s"`
	ResponseTimeout time.Duration `envconfig:"RESPONSE_TIMEOUT" split_words:"true" default:"10s"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: oracle api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default oracle model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) openRouterFor(model string, timeout time.Duration) openrouterx.Config {
	name := strings.TrimSpace(model)
	if name == "" {
		name = strings.TrimSpace(c.Model)
	}
	maxTokens := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              name,
		MaxCompletionToken: &maxTokens,
		Temperature:        c.Temperature,
		Timeout:            timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
