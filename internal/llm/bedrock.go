package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockClient completes chats through the Bedrock Converse API.
type BedrockClient struct {
	bedrock  *bedrockruntime.Client
	modelID  string
	defaults settings
}

// NewBedrockClient loads the default AWS credential chain for region.
func NewBedrockClient(ctx context.Context, region, modelID string, opts ...Option) (*BedrockClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockClient{
		bedrock:  bedrockruntime.NewFromConfig(awsCfg),
		modelID:  modelID,
		defaults: applyOptions(settings{temperature: defaultTemperature, maxTokens: defaultMaxTokens}, opts),
	}, nil
}

func (c *BedrockClient) Complete(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	s := applyOptions(c.defaults, opts)

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.modelID),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(s.maxTokens)),
			Temperature: aws.Float32(float32(s.temperature)),
		},
	}

	system := s.system
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	if len(system) > 0 {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: strings.Join(system, "\n\n")},
		}
	}

	out, err := c.bedrock.Converse(ctx, input)
	if err != nil {
		return "", fmt.Errorf("bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("bedrock converse: unexpected output %T", out.Output)
	}
	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("bedrock converse: empty response")
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *BedrockClient) Model() string { return c.modelID }
