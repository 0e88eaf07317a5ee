package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
)

// DefaultJudgeModel is the chat model used when none is configured.
const DefaultJudgeModel = "gpt-4o"

// verdictResponse is the structured output requested from the judge model.
type verdictResponse struct {
	PolicyViolated   bool                   `json:"policy_violated"`
	PoliciesViolated []audit.ViolatedPolicy `json:"policies_violated"`
	ViolationSummary string                 `json:"violation_summary"`
}

var verdictSchema = GenerateSchema[verdictResponse]()

// NewOpenAIClient builds a chat client. SDK-level retries are disabled; callers retry through a RetryPolicy.
func NewOpenAIClient(apiKey, baseURL string) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return openai.NewClient(opts...)
}

// OpenAIJudge asks a chat model for a compliance verdict. It returns the model text untouched so that
// unparseable output can be preserved by the caller.
type OpenAIJudge struct {
	client     *openai.Client
	model      string
	prompt     string
	structured bool
	retry      RetryPolicy
	logger     *zap.Logger
}

type JudgeOption func(*OpenAIJudge)

// WithPrompt replaces the system rubric.
func WithPrompt(prompt string) JudgeOption {
	return func(j *OpenAIJudge) {
		if strings.TrimSpace(prompt) != "" {
			j.prompt = prompt
		}
	}
}

// WithStructuredOutput toggles the strict JSON schema response format. Some OpenAI-compatible gateways reject it.
func WithStructuredOutput(enabled bool) JudgeOption {
	return func(j *OpenAIJudge) {
		j.structured = enabled
	}
}

func WithJudgeRetryPolicy(p RetryPolicy) JudgeOption {
	return func(j *OpenAIJudge) {
		j.retry = p
	}
}

func WithJudgeLogger(logger *zap.Logger) JudgeOption {
	return func(j *OpenAIJudge) {
		if logger != nil {
			j.logger = logger
		}
	}
}

func NewOpenAIJudge(client *openai.Client, model string, opts ...JudgeOption) (*OpenAIJudge, error) {
	if client == nil {
		return nil, errors.New("NewOpenAIJudge: client is nil")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultJudgeModel
	}
	j := &OpenAIJudge{
		client:     client,
		model:      model,
		prompt:     ComplianceJudgePrompt,
		structured: true,
		retry:      DefaultRetryPolicy(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

func (j *OpenAIJudge) Judge(ctx context.Context, req audit.JudgeRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: j.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(j.prompt),
			openai.UserMessage(req.UserPrompt()),
		},
		Temperature: openai.Float(0),
	}
	if j.structured {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "ComplianceVerdict",
					Description: openai.String("Policy compliance verdict for the bot turns of one conversation"),
					Schema:      verdictSchema,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	resp, err := CallWithRetry(ctx, j.retry, j.logger, "judge.chat", func(ctx context.Context) (*openai.ChatCompletion, error) {
		return j.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("judge: no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
