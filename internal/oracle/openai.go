package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"variant-merger/internal/metrics"
	"variant-merger/internal/models"
)

const (
	ProviderOpenAI = "openai"

	openAIBaseURL      = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4"
	openAITemperature  = 0.3
	openAIMaxTokens    = 500
)

// OpenAI talks to the chat completions API
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// NewOpenAI creates an OpenAI provider. An api key is required.
func NewOpenAI(creds models.ProviderCredentials, opts Options) (Oracle, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingCredentials, ProviderOpenAI)
	}
	opts = opts.withDefaults()

	model := creds.Model
	if model == "" {
		model = openAIDefaultModel
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &OpenAI{
		apiKey:  creds.APIKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  opts.HTTPClient,
		limiter: opts.limiter(),
		metrics: opts.Metrics,
	}, nil
}

func (o *OpenAI) Provider() string {
	return ProviderOpenAI
}

// GenerateName asks for a concise combined name
func (o *OpenAI) GenerateName(ctx context.Context, items []models.Item) (string, error) {
	prompt := fmt.Sprintf("Generate a suitable name for a variable product that will combine these products. "+
		"The name should be concise and descriptive.\n\nProducts:\n%s\n\n"+
		"Respond with only the generated name, no additional text.", describeItems(items))

	content, err := o.complete(ctx, "generate_name", "You are a product naming AI assistant.", prompt)
	if err != nil {
		return "", err
	}

	name := strings.Trim(strings.TrimSpace(content), `"`)
	if name == "" {
		return "", &Error{Provider: ProviderOpenAI, Op: "generate_name", Err: ErrEmptyResponse}
	}
	return name, nil
}

// AnalyzeSimilarity asks whether the items should be merged
func (o *OpenAI) AnalyzeSimilarity(ctx context.Context, items []models.Item, threshold float64) (SimilarityAnalysis, error) {
	prompt := fmt.Sprintf("Analyze these products and determine if they are similar enough to be merged into a variable product. "+
		"Similarity threshold: %.2f%%\n\nProducts:\n%s\n\n"+
		"Respond in JSON format with keys: similar (boolean), similarity_score (float), explanation (string)",
		threshold, describeItems(items))

	var result SimilarityAnalysis
	content, err := o.complete(ctx, "analyze_similarity", "You are a product analysis AI assistant.", prompt)
	if err != nil {
		return result, err
	}
	if err := decodeJSONReply(content, &result); err != nil {
		return result, &Error{Provider: ProviderOpenAI, Op: "analyze_similarity", Err: err}
	}
	return result, nil
}

// AnalyzeAttributes asks for the attributes that distinguish the items
func (o *OpenAI) AnalyzeAttributes(ctx context.Context, items []models.Item) (AttributeAnalysis, error) {
	prompt := fmt.Sprintf("Analyze these products and identify common attributes that could be used as variations. "+
		"Focus on size, color, and other significant attributes.\n\nProducts:\n%s\n\n"+
		"Respond in JSON format with keys: attributes (array of attribute names), "+
		"variations (array of variation combinations)", describeItems(items))

	var result AttributeAnalysis
	content, err := o.complete(ctx, "analyze_attributes", "You are a product attribute analysis AI assistant.", prompt)
	if err != nil {
		return result, err
	}
	if err := decodeJSONReply(content, &result); err != nil {
		return result, &Error{Provider: ProviderOpenAI, Op: "analyze_attributes", Err: err}
	}
	return result, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (o *OpenAI) complete(ctx context.Context, op, system, prompt string) (content string, err error) {
	defer func() {
		o.metrics.ObserveOracleCall(ProviderOpenAI, op, err)
	}()

	wrap := func(err error) error {
		return &Error{Provider: ProviderOpenAI, Op: op, Err: err}
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return "", wrap(err)
	}

	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: openAITemperature,
		MaxTokens:   openAIMaxTokens,
	})
	if err != nil {
		return "", wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", wrap(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", wrap(err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", wrap(fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err))
	}
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", wrap(fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	if len(parsed.Choices) == 0 {
		return "", wrap(ErrEmptyResponse)
	}

	return parsed.Choices[0].Message.Content, nil
}

// decodeJSONReply tolerates replies wrapped in markdown code fences
func decodeJSONReply(content string, v any) error {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyResponse
	}
	return json.Unmarshal([]byte(content), v)
}

func describeItems(items []models.Item) string {
	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. Name: %s\nSKU: %s\nDescription: %s\nAttributes: %s\n\n",
			i+1, item.Name, item.SKU, item.Description, describeAttributes(item.Attributes))
	}
	return sb.String()
}

func describeAttributes(attrs []models.Attribute) string {
	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		parts = append(parts, attr.Name+": "+strings.Join(attr.Options, ", "))
	}
	return strings.Join(parts, "; ")
}
