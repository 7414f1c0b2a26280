package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promptpix/internal/domain"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	defaultPromptModel = "gemini-2.5-flash"
	defaultRatingModel = "gemini-2.5-pro"
	defaultImageModel  = "gemini-2.5-flash-image"
	defaultTimeout     = 60 * time.Second
)

// basePromptInstruction steers the model towards structured generator-ready
// prompts instead of plain image descriptions.
const basePromptInstruction = `You are an AI assistant that converts images into detailed prompts for AI image generators like DALL·E, MidJourney, or Stable Diffusion. Do NOT output normal descriptive sentences. Instead, create a creative, structured prompt that captures: Objects and subjects in the image, scene and background details, lighting and mood, artistic style (e.g., realistic, cartoon, anime, cyberpunk), colors and textures, and any other visually relevant details. Format the output as a single prompt string ready to paste into an AI image generator. Avoid vague descriptions. Be imaginative and precise. Example: "A futuristic cityscape at sunset, neon lights reflecting on wet streets, cyberpunk style, high detail, dramatic lighting, cinematic perspective, 8K resolution".`

const ratingSystemInstruction = "You are a prompt engineering expert. Analyze the user's prompt for an AI image generator. Rate it on a scale of 1 to 10 for its overall quality, considering detail, coherence, and creativity. Provide brief, constructive feedback. Return ONLY a JSON object with 'score' (a number from 1.0 to 10.0) and 'feedback' (a string)."

const (
	refineConciseInstruction     = "You are an AI assistant specializing in text summarization. Your task is to make the following AI image prompt more concise while retaining its core essence. Remove verbose phrasing and redundant details. Do not add new concepts. Output only the refined prompt."
	refineDescriptiveInstruction = "You are an AI assistant specializing in text expansion. Your task is to enrich the following AI image prompt by adding more vivid details, sensory language, and evocative descriptions. Expand on the existing concepts without introducing entirely new subjects. Output only the refined prompt."
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey      string
	BaseURL     string
	PromptModel string
	RatingModel string
	ImageModel  string
	HTTPClient  *http.Client
	Logger      *zerolog.Logger
}

// Client is a thin facade over the Gemini REST API implementing the four
// generative operations the workflow engine depends on.
type Client struct {
	apiKey      string
	baseURL     string
	promptModel string
	ratingModel string
	imageModel  string
	httpClient  *http.Client
	logger      *zerolog.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiSchema struct {
	Type        string                  `json:"type"`
	Description string                  `json:"description,omitempty"`
	Properties  map[string]geminiSchema `json:"properties,omitempty"`
	Required    []string                `json:"required,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount   int           `json:"candidateCount,omitempty"`
	ResponseMimeType string        `json:"responseMimeType,omitempty"`
	ResponseSchema   *geminiSchema `json:"responseSchema,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

type ratingPayload struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may
// provide a nil HTTP client; a reusable one with a timeout is created.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("genai: api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	var logger *zerolog.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		promptModel: firstNonEmpty(opts.PromptModel, defaultPromptModel),
		ratingModel: firstNonEmpty(opts.RatingModel, defaultRatingModel),
		imageModel:  firstNonEmpty(opts.ImageModel, defaultImageModel),
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// GeneratePrompt analyzes an uploaded image and returns a generator-ready
// prompt in the requested artistic style.
func (c *Client) GeneratePrompt(ctx context.Context, imageBase64, mimeType, style string) (string, error) {
	instruction := basePromptInstruction + styleInstruction(style) +
		" Now, analyze the uploaded image and generate a similar high-quality AI image prompt."

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{MimeType: mimeType, Data: imageBase64}},
				{Text: instruction},
			},
		}},
	}

	var out geminiResponse
	if err := c.invoke(ctx, c.promptModel, payload, &out); err != nil {
		return "", err
	}
	text := strings.TrimSpace(extractText(out))
	if text == "" {
		return "", fmt.Errorf("%w: empty prompt response", domain.ErrProviderFailure)
	}
	c.logger.Debug().Str("model", c.promptModel).Str("style", style).Msg("genai: generated prompt from image")
	return text, nil
}

// GenerateImage renders the prompt and returns the result as a PNG data URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
	}

	var out geminiResponse
	if err := c.invoke(ctx, c.imageModel, payload, &out); err != nil {
		return "", err
	}
	for _, candidate := range out.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				mime := firstNonEmpty(part.InlineData.MimeType, "image/png")
				c.logger.Debug().Str("model", c.imageModel).Msg("genai: generated image")
				return domain.BuildDataURL(mime, part.InlineData.Data), nil
			}
		}
	}
	return "", fmt.Errorf("%w: no image returned", domain.ErrProviderFailure)
}

// RatePrompt scores the prompt 1.0-10.0 with brief feedback. The response is
// schema-constrained JSON; anything non-conforming is a provider failure.
func (c *Client) RatePrompt(ctx context.Context, prompt string) (*domain.PromptRating, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: fmt.Sprintf("Please analyze this AI image prompt: %q", prompt)}},
		}},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: ratingSystemInstruction}},
		},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   1,
			ResponseMimeType: "application/json",
			ResponseSchema: &geminiSchema{
				Type: "OBJECT",
				Properties: map[string]geminiSchema{
					"score":    {Type: "NUMBER", Description: "A rating from 1.0 to 10.0"},
					"feedback": {Type: "STRING", Description: "Brief, constructive feedback"},
				},
				Required: []string{"score", "feedback"},
			},
		},
	}

	var out geminiResponse
	if err := c.invoke(ctx, c.ratingModel, payload, &out); err != nil {
		return nil, err
	}
	raw := extractJSONFragment(extractText(out))
	if raw == "" {
		return nil, fmt.Errorf("%w: empty rating response", domain.ErrProviderFailure)
	}
	var parsed ratingPayload
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed rating payload: %v", domain.ErrProviderFailure, err)
	}
	if parsed.Feedback == "" {
		return nil, fmt.Errorf("%w: rating payload missing feedback", domain.ErrProviderFailure)
	}
	return &domain.PromptRating{Score: parsed.Score, Feedback: parsed.Feedback}, nil
}

// RefinePrompt transforms the prompt text in the requested direction. Each
// call transforms the current text further; resetting is the caller's job.
func (c *Client) RefinePrompt(ctx context.Context, prompt string, level domain.RefineLevel) (string, error) {
	instruction := refineDescriptiveInstruction
	if level == domain.RefineConcise {
		instruction = refineConciseInstruction
	}
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: instruction}},
		},
	}

	var out geminiResponse
	if err := c.invoke(ctx, c.promptModel, payload, &out); err != nil {
		return "", err
	}
	text := strings.TrimSpace(extractText(out))
	if text == "" {
		return "", fmt.Errorf("%w: empty refinement response", domain.ErrProviderFailure)
	}
	return text, nil
}

func (c *Client) invoke(ctx context.Context, model string, payload geminiRequest, out *geminiResponse) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("genai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("genai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%w: gemini status %d: %s", domain.ErrProviderFailure, resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("%w: gemini status %d", domain.ErrProviderFailure, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrProviderFailure, err)
	}
	return nil
}

func styleInstruction(style string) string {
	if style == "" || strings.EqualFold(style, domain.StyleNone) {
		return ""
	}
	return fmt.Sprintf(" The generated prompt MUST be in a %q artistic style. Emphasize keywords and techniques associated with %s.", style, style)
}

func extractText(resp geminiResponse) string {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

// extractJSONFragment tolerates code fences and prose around the JSON object
// some models emit despite the response schema.
func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
