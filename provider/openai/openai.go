// Package openai adapts the OpenAI API to the gateway Provider interface.
//
// Chat completions back the content and code operations; the images API
// backs generate-image.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/lumenlab/aigateway"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultChatModel  = "gpt-4-turbo-preview"
	defaultImageModel = "dall-e-3"
)

var (
	contentTypes   = []string{"article", "social", "marketing", "seo"}
	contentTones   = []string{"professional", "casual", "friendly", "formal"}
	contentSizes   = []string{"short", "medium", "long"}
	imageSizes     = []string{"256x256", "512x512", "1024x1024"}
	imageQualities = []string{"standard", "hd"}
)

// Provider is the OpenAI adapter.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	chatModel  string
	imageModel string
}

var _ aigateway.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithChatModel sets the chat model used for text and code operations.
func WithChatModel(model string) Option {
	return func(p *Provider) { p.chatModel = model }
}

// WithImageModel sets the image generation model.
func WithImageModel(model string) Option {
	return func(p *Provider) { p.imageModel = model }
}

// New creates an OpenAI adapter.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		chatModel:  defaultChatModel,
		imageModel: defaultImageModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Supports(operation string) bool {
	switch operation {
	case aigateway.OpGenerateContent, aigateway.OpGenerateCode,
		aigateway.OpExplainCode, aigateway.OpDebugCode, aigateway.OpGenerateImage:
		return true
	}
	return false
}

// Validate checks operation params before any network call.
func (p *Provider) Validate(operation string, params aigateway.Params) error {
	switch operation {
	case aigateway.OpGenerateContent:
		cp, ok := params.(aigateway.ContentParams)
		if !ok {
			return badParams(operation, params)
		}
		if cp.Prompt == "" {
			return aigateway.NewError("prompt is required", aigateway.KindInvalidRequest)
		}
		if !oneOf(cp.Type, contentTypes) {
			return enumError("type", cp.Type, contentTypes)
		}
		if cp.Tone != "" && !oneOf(cp.Tone, contentTones) {
			return enumError("tone", cp.Tone, contentTones)
		}
		if cp.Length != "" && !oneOf(cp.Length, contentSizes) {
			return enumError("length", cp.Length, contentSizes)
		}
	case aigateway.OpGenerateCode:
		cp, ok := params.(aigateway.CodeParams)
		if !ok {
			return badParams(operation, params)
		}
		if cp.Prompt == "" {
			return aigateway.NewError("prompt is required", aigateway.KindInvalidRequest)
		}
		if cp.Language == "" {
			return aigateway.NewError("language is required", aigateway.KindInvalidRequest)
		}
	case aigateway.OpExplainCode, aigateway.OpDebugCode:
		cp, ok := params.(aigateway.CodeReviewParams)
		if !ok {
			return badParams(operation, params)
		}
		if cp.Code == "" {
			return aigateway.NewError("code is required", aigateway.KindInvalidRequest)
		}
		if cp.Language == "" {
			return aigateway.NewError("language is required", aigateway.KindInvalidRequest)
		}
	case aigateway.OpGenerateImage:
		ip, ok := params.(aigateway.ImageGenerationParams)
		if !ok {
			return badParams(operation, params)
		}
		if ip.Prompt == "" {
			return aigateway.NewError("prompt is required", aigateway.KindInvalidRequest)
		}
		if !oneOf(ip.Size, imageSizes) {
			return enumError("size", ip.Size, imageSizes)
		}
		if ip.Quality != "" && !oneOf(ip.Quality, imageQualities) {
			return enumError("quality", ip.Quality, imageQualities)
		}
	default:
		return aigateway.NewError(fmt.Sprintf("openai does not support %q", operation), aigateway.KindInvalidRequest)
	}
	return nil
}

// Execute performs one attempt of the operation.
func (p *Provider) Execute(ctx context.Context, operation string, params aigateway.Params, _ aigateway.ProgressFunc) (aigateway.Result, error) {
	switch operation {
	case aigateway.OpGenerateContent:
		cp := params.(aigateway.ContentParams)
		return p.chat(ctx, contentSystemPrompt(cp), cp.Prompt, 0.7, contentMaxTokens(cp.Length))
	case aigateway.OpGenerateCode:
		cp := params.(aigateway.CodeParams)
		return p.chat(ctx, codeSystemPrompt(cp), cp.Prompt, 0.3, 2000)
	case aigateway.OpExplainCode:
		cp := params.(aigateway.CodeReviewParams)
		system := fmt.Sprintf("You are an expert %s developer. Explain the following code in detail:", cp.Language)
		return p.chat(ctx, system, cp.Code, 0.5, 500)
	case aigateway.OpDebugCode:
		cp := params.(aigateway.CodeReviewParams)
		system := fmt.Sprintf("You are an expert %s developer. Identify issues in the following code and suggest fixes:", cp.Language)
		return p.chat(ctx, system, cp.Code, 0.5, 1000)
	case aigateway.OpGenerateImage:
		return p.generateImage(ctx, params.(aigateway.ImageGenerationParams))
	default:
		return aigateway.Result{}, aigateway.NewError(fmt.Sprintf("openai does not support %q", operation), aigateway.KindInvalidRequest)
	}
}

func contentSystemPrompt(cp aigateway.ContentParams) string {
	tone := cp.Tone
	if tone == "" {
		tone = "professional"
	}
	length := cp.Length
	if length == "" {
		length = "medium"
	}
	return fmt.Sprintf("You are a professional %s content writer. Create %s content that is %s in length and optimized for %s.",
		cp.Type, tone, length, cp.Type)
}

func codeSystemPrompt(cp aigateway.CodeParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert %s developer", cp.Language)
	if cp.Framework != "" {
		fmt.Fprintf(&b, " specializing in %s", cp.Framework)
	}
	b.WriteString(". Generate clean, well-documented code")
	if cp.Architecture != "" {
		fmt.Fprintf(&b, " following %s architecture", cp.Architecture)
	}
	b.WriteString(".")
	return b.String()
}

func contentMaxTokens(length string) int {
	switch length {
	case "short":
		return 250
	case "long":
		return 1000
	default:
		return 500
	}
}

// chatRequest is the OpenAI chat completion request format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the OpenAI chat completion response format.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Provider) chat(ctx context.Context, system, user string, temperature float64, maxTokens int) (aigateway.Result, error) {
	body := chatRequest{
		Model: p.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	httpResp, err := p.doRequest(ctx, "/chat/completions", body)
	if err != nil {
		return aigateway.Result{}, err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return aigateway.Result{}, err
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return aigateway.Result{}, aigateway.NewError("decode response: "+err.Error(), aigateway.KindProcessingError)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return aigateway.Result{}, aigateway.NewError("no content in response", aigateway.KindProcessingError)
	}

	return aigateway.Result{
		Output: resp.Choices[0].Message.Content,
		Tokens: resp.Usage.TotalTokens,
	}, nil
}

// imageRequest is the OpenAI image generation request format.
type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (p *Provider) generateImage(ctx context.Context, ip aigateway.ImageGenerationParams) (aigateway.Result, error) {
	quality := ip.Quality
	if quality == "" {
		quality = "standard"
	}
	body := imageRequest{
		Model:   p.imageModel,
		Prompt:  fmt.Sprintf("%s in %s style", ip.Prompt, ip.Style),
		N:       1,
		Size:    ip.Size,
		Quality: quality,
	}

	httpResp, err := p.doRequest(ctx, "/images/generations", body)
	if err != nil {
		return aigateway.Result{}, err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return aigateway.Result{}, err
	}

	var resp imageResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return aigateway.Result{}, aigateway.NewError("decode response: "+err.Error(), aigateway.KindProcessingError)
	}

	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return aigateway.Result{}, aigateway.NewError("no image URL in response", aigateway.KindProcessingError)
	}

	return aigateway.Result{Output: resp.Data[0].URL}, nil
}

func (p *Provider) doRequest(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, aigateway.NewError("marshal request: "+err.Error(), aigateway.KindProcessingError)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, aigateway.NewError("create request: "+err.Error(), aigateway.KindProcessingError)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, aigateway.AsError(err)
	}
	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	return aigateway.FromStatus(resp.StatusCode, msg, retryAfter)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func enumError(field, got string, allowed []string) error {
	return aigateway.NewError(
		fmt.Sprintf("invalid %s %q, expected one of %s", field, got, strings.Join(allowed, ", ")),
		aigateway.KindInvalidRequest,
	)
}

func badParams(operation string, params aigateway.Params) error {
	return aigateway.NewError(
		fmt.Sprintf("wrong params type %T for %s", params, operation),
		aigateway.KindInvalidRequest,
	)
}
