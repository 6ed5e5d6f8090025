package executor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/davenport-labs/flotilla/pkg/models"
)

// ClientConfig configures the underlying Anthropic client.
type ClientConfig struct {
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS shared-config profile.
	AWSProfile string
}

// modelIDs maps flotilla tiers to concrete API model identifiers.
var modelIDs = map[models.Model]anthropic.Model{
	models.ModelHaiku:  anthropic.ModelClaudeHaiku4_5_20251001,
	models.ModelSonnet: anthropic.ModelClaudeSonnet4_5_20250929,
	models.ModelOpus:   anthropic.ModelClaudeOpus4_5_20251101,
}

// bedrockIDs maps tiers to Bedrock cross-region inference profiles.
var bedrockIDs = map[models.Model]anthropic.Model{
	models.ModelHaiku:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	models.ModelSonnet: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	models.ModelOpus:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
}

// newAPIClient builds the SDK client for the configured transport.
func newAPIClient(ctx context.Context, cfg ClientConfig) (anthropic.Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return anthropic.Client{}, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	return anthropic.NewClient(opts...), nil
}

// apiModelFor resolves a tier to the transport's model identifier.
func apiModelFor(tier models.Model, useBedrock bool) anthropic.Model {
	table := modelIDs
	if useBedrock {
		table = bedrockIDs
	}
	if id, ok := table[tier]; ok {
		return id
	}
	// Unknown tier, pass through as a literal model name.
	return anthropic.Model(tier)
}

// isRateLimited reports whether an API error looks like throttling.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "overloaded")
}
