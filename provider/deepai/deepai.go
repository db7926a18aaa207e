// Package deepai adapts the DeepAI background remover to the gateway
// Provider interface.
//
// The image input is either a URL (sent as a JSON body) or raw bytes (sent
// as a multipart form). The returned output URL is verified with a
// lightweight fetch before the operation is declared successful.
package deepai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/lumenlab/aigateway"
)

const defaultBaseURL = "https://api.deepai.org/api/background-remover"

// Provider is the DeepAI adapter.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	verify     bool
}

var _ aigateway.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithoutVerification disables the output URL check.
func WithoutVerification() Option {
	return func(p *Provider) { p.verify = false }
}

// New creates a DeepAI adapter.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		verify:     true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "deepai" }

func (p *Provider) Supports(operation string) bool {
	return operation == aigateway.OpRemoveBackground
}

// Validate checks operation params before any network call.
func (p *Provider) Validate(operation string, params aigateway.Params) error {
	if operation != aigateway.OpRemoveBackground {
		return aigateway.NewError(fmt.Sprintf("deepai does not support %q", operation), aigateway.KindInvalidRequest)
	}
	bp, ok := params.(aigateway.BackgroundRemovalParams)
	if !ok {
		return aigateway.NewError(
			fmt.Sprintf("wrong params type %T for %s", params, operation),
			aigateway.KindInvalidRequest,
		)
	}
	if bp.ImageURL == "" && len(bp.ImageData) == 0 {
		return aigateway.NewError("an image URL or image data is required", aigateway.KindInvalidRequest)
	}
	if bp.ImageURL != "" && len(bp.ImageData) > 0 {
		return aigateway.NewError("image URL and image data are mutually exclusive", aigateway.KindInvalidRequest)
	}
	if bp.ImageURL != "" && !strings.HasPrefix(bp.ImageURL, "http") {
		return aigateway.NewError("image URL must be http or https", aigateway.KindInvalidRequest)
	}
	return nil
}

type apiResponse struct {
	ID        string `json:"id"`
	OutputURL string `json:"output_url"`
}

// Execute removes the background from the input image. Progress milestones:
// 10 on submit, 50 once the provider answers, 100 after verification.
// Progress resets to 0 before any error propagates.
func (p *Provider) Execute(ctx context.Context, operation string, params aigateway.Params, progress aigateway.ProgressFunc) (aigateway.Result, error) {
	if operation != aigateway.OpRemoveBackground {
		return aigateway.Result{}, aigateway.NewError(fmt.Sprintf("deepai does not support %q", operation), aigateway.KindInvalidRequest)
	}
	bp := params.(aigateway.BackgroundRemovalParams)

	result, err := p.execute(ctx, bp, progress)
	if err != nil {
		report(progress, 0)
		return aigateway.Result{}, err
	}
	return result, nil
}

func (p *Provider) execute(ctx context.Context, bp aigateway.BackgroundRemovalParams, progress aigateway.ProgressFunc) (aigateway.Result, error) {
	report(progress, 10)

	httpReq, err := p.buildRequest(ctx, bp)
	if err != nil {
		return aigateway.Result{}, err
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return aigateway.Result{}, aigateway.AsError(err)
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return aigateway.Result{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return aigateway.Result{}, aigateway.NewError("decode response: "+err.Error(), aigateway.KindProcessingError)
	}
	if resp.OutputURL == "" {
		return aigateway.Result{}, aigateway.NewError("no output URL in response", aigateway.KindProcessingError)
	}

	report(progress, 50)

	if p.verify {
		if err := p.verifyImageURL(ctx, resp.OutputURL); err != nil {
			return aigateway.Result{}, err
		}
	}

	report(progress, 100)
	return aigateway.Result{Output: resp.OutputURL}, nil
}

// buildRequest shapes the call: JSON for URL inputs, multipart for raw bytes.
func (p *Provider) buildRequest(ctx context.Context, bp aigateway.BackgroundRemovalParams) (*http.Request, error) {
	var body io.Reader
	var contentType string

	if bp.ImageURL != "" {
		jsonBody, err := json.Marshal(map[string]string{"image": bp.ImageURL})
		if err != nil {
			return nil, aigateway.NewError("marshal request: "+err.Error(), aigateway.KindProcessingError)
		}
		body = bytes.NewReader(jsonBody)
		contentType = "application/json"
	} else {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("image", "image")
		if err != nil {
			return nil, aigateway.NewError("build form: "+err.Error(), aigateway.KindProcessingError)
		}
		if _, err := fw.Write(bp.ImageData); err != nil {
			return nil, aigateway.NewError("build form: "+err.Error(), aigateway.KindProcessingError)
		}
		if err := mw.Close(); err != nil {
			return nil, aigateway.NewError("build form: "+err.Error(), aigateway.KindProcessingError)
		}
		body = &buf
		contentType = mw.FormDataContentType()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, body)
	if err != nil {
		return nil, aigateway.NewError("create request: "+err.Error(), aigateway.KindProcessingError)
	}
	httpReq.Header.Set("api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", contentType)
	return httpReq, nil
}

// verifyImageURL fetches the output URL and checks it serves an image.
func (p *Provider) verifyImageURL(ctx context.Context, url string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return aigateway.NewError("failed to verify output image", aigateway.KindProcessingError)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return aigateway.NewError("failed to verify output image", aigateway.KindProcessingError)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 ||
		!strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return aigateway.NewError("failed to verify output image", aigateway.KindProcessingError)
	}
	return nil
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
