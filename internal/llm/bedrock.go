package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// converser is the part of the Bedrock runtime API the client uses.
type converser interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient calls a Bedrock model through the Converse API.
type BedrockClient struct {
	api         converser
	model       string
	maxTokens   int32
	temperature float32
}

// NewBedrockClient loads AWS configuration for cfg.Region. Static
// credentials are used when an access key is set; otherwise the default
// credential chain applies.
func NewBedrockClient(ctx context.Context, cfg Config) (*BedrockClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required for the bedrock backend")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newBedrock(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func newBedrock(api converser, cfg Config) *BedrockClient {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 800
	}
	return &BedrockClient{
		api:         api,
		model:       cfg.Model,
		maxTokens:   int32(maxTokens),
		temperature: float32(cfg.Temperature),
	}
}

// Complete implements Client. System messages become the system prompt;
// the rest are sent in order.
func (c *BedrockClient) Complete(ctx context.Context, messages []Message) (string, error) {
	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.maxTokens),
			Temperature: aws.Float32(c.temperature),
		},
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			in.System = append(in.System, &types.SystemContentBlockMemberText{Value: m.Content})
		case RoleAssistant:
			in.Messages = append(in.Messages, textMessage(types.ConversationRoleAssistant, m.Content))
		default:
			in.Messages = append(in.Messages, textMessage(types.ConversationRoleUser, m.Content))
		}
	}

	out, err := c.api.Converse(ctx, in)
	if err != nil {
		return "", fmt.Errorf("bedrock converse: %w", err)
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("bedrock converse: no message in output")
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(t.Value)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func textMessage(role types.ConversationRole, text string) types.Message {
	return types.Message{
		Role:    role,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
	}
}
