// Package fal adapts the fal.ai image API to the gateway Provider interface.
package fal

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

const defaultBaseURL = "https://fal.run"

// Model endpoints per operation.
const (
	modelImageGeneration   = "fal-ai/flux/dev"
	modelImageEnhance      = "image-enhance"
	modelBackgroundRemoval = "background-removal"
	modelSuperResolution   = "super-resolution"
	modelImageConversion   = "image-conversion"
	modelVideoGeneration   = "video-generation"
	modelSocialShorts      = "social-media-shorts"
)

var (
	generationSizes  = []string{"512x512", "760x760", "1024x1024", "2048x2048"}
	outputFormats    = []string{"jpeg", "png", "webp", "pdf", "gif"}
	videoStyles      = []string{"realistic", "animated", "3d", "motion"}
	videoResolutions = []string{"720p", "1080p", "2k"}
)

// Provider is the fal.ai adapter.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
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

// New creates a fal.ai adapter.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "fal" }

func (p *Provider) Supports(operation string) bool {
	switch operation {
	case aigateway.OpGenerateImage, aigateway.OpEnhanceImage,
		aigateway.OpRemoveBackground, aigateway.OpUpscaleImage, aigateway.OpConvertImage,
		aigateway.OpGenerateVideo, aigateway.OpGenerateShorts:
		return true
	}
	return false
}

// Validate checks operation params before any network call.
func (p *Provider) Validate(operation string, params aigateway.Params) error {
	switch operation {
	case aigateway.OpGenerateImage:
		ip, ok := params.(aigateway.ImageGenerationParams)
		if !ok {
			return badParams(operation, params)
		}
		if ip.Prompt == "" {
			return aigateway.NewError("prompt is required", aigateway.KindInvalidRequest)
		}
		if !oneOf(ip.Size, generationSizes) {
			return enumError("size", ip.Size, generationSizes)
		}
	case aigateway.OpEnhanceImage:
		ep, ok := params.(aigateway.ImageEnhanceParams)
		if !ok {
			return badParams(operation, params)
		}
		if ep.ImageURL == "" {
			return aigateway.NewError("image_url is required", aigateway.KindInvalidRequest)
		}
	case aigateway.OpRemoveBackground:
		bp, ok := params.(aigateway.BackgroundRemovalParams)
		if !ok {
			return badParams(operation, params)
		}
		if bp.ImageURL == "" {
			return aigateway.NewError("image_url is required", aigateway.KindInvalidRequest)
		}
	case aigateway.OpUpscaleImage:
		up, ok := params.(aigateway.ImageUpscaleParams)
		if !ok {
			return badParams(operation, params)
		}
		if up.ImageURL == "" {
			return aigateway.NewError("image_url is required", aigateway.KindInvalidRequest)
		}
	case aigateway.OpConvertImage:
		cp, ok := params.(aigateway.ImageConversionParams)
		if !ok {
			return badParams(operation, params)
		}
		if cp.ImageURL == "" {
			return aigateway.NewError("image_url is required", aigateway.KindInvalidRequest)
		}
		if !oneOf(cp.Format, outputFormats) {
			return enumError("format", cp.Format, outputFormats)
		}
	case aigateway.OpGenerateVideo:
		vp, ok := params.(aigateway.VideoGenerationParams)
		if !ok {
			return badParams(operation, params)
		}
		if vp.ImageURL == "" {
			return aigateway.NewError("image_url is required", aigateway.KindInvalidRequest)
		}
		if vp.Style != "" && !oneOf(vp.Style, videoStyles) {
			return enumError("style", vp.Style, videoStyles)
		}
		if vp.Resolution != "" && !oneOf(vp.Resolution, videoResolutions) {
			return enumError("resolution", vp.Resolution, videoResolutions)
		}
	case aigateway.OpGenerateShorts:
		sp, ok := params.(aigateway.ShortsParams)
		if !ok {
			return badParams(operation, params)
		}
		if sp.VideoURL == "" {
			return aigateway.NewError("video_url is required", aigateway.KindInvalidRequest)
		}
		if sp.Caption == "" {
			return aigateway.NewError("caption is required", aigateway.KindInvalidRequest)
		}
	default:
		return aigateway.NewError(fmt.Sprintf("fal does not support %q", operation), aigateway.KindInvalidRequest)
	}
	return nil
}

// apiResponse covers the result shapes fal returns across models: some
// answer with an images array, some with a single image_url.
type apiResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	ImageURL      string `json:"image_url"`
	VideoURL      string `json:"video_url"`
	ShortVideoURL string `json:"short_video_url"`
	Status        string `json:"status"`
}

// Execute performs one attempt of the operation.
func (p *Provider) Execute(ctx context.Context, operation string, params aigateway.Params, progress aigateway.ProgressFunc) (aigateway.Result, error) {
	switch operation {
	case aigateway.OpGenerateImage:
		return p.generateImage(ctx, params.(aigateway.ImageGenerationParams), progress)
	case aigateway.OpEnhanceImage:
		ep := params.(aigateway.ImageEnhanceParams)
		return p.runImages(ctx, modelImageEnhance, map[string]any{
			"image_url": ep.ImageURL,
			"upscale":   ep.Upscale,
			"denoise":   ep.Denoise,
			"enhance":   ep.Enhance,
		})
	case aigateway.OpRemoveBackground:
		bp := params.(aigateway.BackgroundRemovalParams)
		return p.runImageURL(ctx, modelBackgroundRemoval, map[string]any{
			"image_url": bp.ImageURL,
		})
	case aigateway.OpUpscaleImage:
		up := params.(aigateway.ImageUpscaleParams)
		scale := up.Scale
		if scale < 1 {
			scale = 2
		}
		if scale > 4 {
			scale = 4
		}
		return p.runImageURL(ctx, modelSuperResolution, map[string]any{
			"image_url": up.ImageURL,
			"scale":     scale,
		})
	case aigateway.OpConvertImage:
		cp := params.(aigateway.ImageConversionParams)
		return p.runImageURL(ctx, modelImageConversion, map[string]any{
			"image_url":        cp.ImageURL,
			"output_format":    cp.Format,
			"preserve_quality": true,
		})
	case aigateway.OpGenerateVideo:
		return p.generateVideo(ctx, params.(aigateway.VideoGenerationParams))
	case aigateway.OpGenerateShorts:
		sp := params.(aigateway.ShortsParams)
		resp, err := p.run(ctx, modelSocialShorts, map[string]any{
			"video_file": sp.VideoURL,
			"caption":    sp.Caption,
		})
		if err != nil {
			return aigateway.Result{}, err
		}
		if resp.ShortVideoURL == "" {
			return aigateway.Result{}, aigateway.NewError("no short video URL in response", aigateway.KindProcessingError)
		}
		return aigateway.Result{Output: resp.ShortVideoURL}, nil
	default:
		return aigateway.Result{}, aigateway.NewError(fmt.Sprintf("fal does not support %q", operation), aigateway.KindInvalidRequest)
	}
}

// generateImage reports queue progress milestones: 5 on submit, 50 while the
// model runs, 100 on completion. Progress resets to 0 before any error.
func (p *Provider) generateImage(ctx context.Context, ip aigateway.ImageGenerationParams, progress aigateway.ProgressFunc) (aigateway.Result, error) {
	size := "square"
	if ip.Size == "1024x1024" || ip.Size == "2048x2048" {
		size = "square_hd"
	}

	report(progress, 5)

	resp, err := p.run(ctx, modelImageGeneration, map[string]any{
		"prompt":     fmt.Sprintf("%s in %s style", ip.Prompt, ip.Style),
		"image_size": size,
		"num_images": 1,
	})
	if err != nil {
		report(progress, 0)
		return aigateway.Result{}, err
	}

	report(progress, 50)

	if len(resp.Images) == 0 || resp.Images[0].URL == "" {
		report(progress, 0)
		return aigateway.Result{}, aigateway.NewError("no generated image URL in response", aigateway.KindProcessingError)
	}

	report(progress, 100)
	return aigateway.Result{Output: resp.Images[0].URL}, nil
}

// generateVideo animates a source image. Duration is clamped to the 5-30
// second range the video tool offers, defaulting to 15.
func (p *Provider) generateVideo(ctx context.Context, vp aigateway.VideoGenerationParams) (aigateway.Result, error) {
	duration := vp.Duration
	if duration == 0 {
		duration = 15
	}
	if duration < 5 {
		duration = 5
	}
	if duration > 30 {
		duration = 30
	}

	resp, err := p.run(ctx, modelVideoGeneration, map[string]any{
		"image_url":  vp.ImageURL,
		"prompt":     vp.Prompt,
		"style":      vp.Style,
		"duration":   duration,
		"resolution": vp.Resolution,
	})
	if err != nil {
		return aigateway.Result{}, err
	}
	if resp.VideoURL == "" {
		return aigateway.Result{}, aigateway.NewError("no video URL in response", aigateway.KindProcessingError)
	}
	return aigateway.Result{Output: resp.VideoURL}, nil
}

// runImages runs a model whose canonical result is images[0].url.
func (p *Provider) runImages(ctx context.Context, model string, input map[string]any) (aigateway.Result, error) {
	resp, err := p.run(ctx, model, input)
	if err != nil {
		return aigateway.Result{}, err
	}
	if len(resp.Images) == 0 || resp.Images[0].URL == "" {
		return aigateway.Result{}, aigateway.NewError("no image URL in response", aigateway.KindProcessingError)
	}
	return aigateway.Result{Output: resp.Images[0].URL}, nil
}

// runImageURL runs a model whose canonical result is image_url.
func (p *Provider) runImageURL(ctx context.Context, model string, input map[string]any) (aigateway.Result, error) {
	resp, err := p.run(ctx, model, input)
	if err != nil {
		return aigateway.Result{}, err
	}
	if resp.ImageURL == "" {
		return aigateway.Result{}, aigateway.NewError("no image URL in response", aigateway.KindProcessingError)
	}
	return aigateway.Result{Output: resp.ImageURL}, nil
}

func (p *Provider) run(ctx context.Context, model string, input map[string]any) (apiResponse, error) {
	jsonBody, err := json.Marshal(input)
	if err != nil {
		return apiResponse{}, aigateway.NewError("marshal request: "+err.Error(), aigateway.KindProcessingError)
	}

	url := p.baseURL + "/" + model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return apiResponse{}, aigateway.NewError("create request: "+err.Error(), aigateway.KindProcessingError)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return apiResponse{}, aigateway.AsError(err)
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return apiResponse{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return apiResponse{}, aigateway.NewError("decode response: "+err.Error(), aigateway.KindProcessingError)
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

func report(progress aigateway.ProgressFunc, percent int) {
	if progress != nil {
		progress(percent)
	}
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
