package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/lumenlab/aigateway"
	"github.com/lumenlab/aigateway/provider/openai"
)

func chatServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *openai.Provider) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, openai.New("test-key", openai.WithBaseURL(srv.URL))
}

func TestGenerateContent_Success(t *testing.T) {
	var gotAuth string
	var gotReq map[string]any
	_, p := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Generated article text."}},
			},
			"usage": map[string]any{"total_tokens": 321},
		})
	})

	params := ai.ContentParams{Prompt: "write about foxes", Type: "article", Tone: "casual", Length: "short"}
	res, err := p.Execute(context.Background(), ai.OpGenerateContent, params, nil)

	require.NoError(t, err)
	assert.Equal(t, "Generated article text.", res.Output)
	assert.Equal(t, int64(321), res.Tokens)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, float64(250), gotReq["max_tokens"])

	msgs := gotReq["messages"].([]any)
	system := msgs[0].(map[string]any)["content"].(string)
	assert.Contains(t, system, "article")
	assert.Contains(t, system, "casual")
}

func TestGenerateImage_Success(t *testing.T) {
	_, p := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"url": "https://img.example.com/1.png"}},
		})
	})

	params := ai.ImageGenerationParams{Prompt: "a fox", Style: "sketch", Size: "512x512"}
	res, err := p.Execute(context.Background(), ai.OpGenerateImage, params, nil)

	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/1.png", res.Output)
}

func TestExecute_EmptyChoicesIsProcessingError(t *testing.T) {
	_, p := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := p.Execute(context.Background(), ai.OpGenerateCode,
		ai.CodeParams{Prompt: "sort a slice", Language: "go"}, nil)

	var ge *ai.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, ai.KindProcessingError, ge.Kind)
}

func TestExecute_MapsHTTPStatuses(t *testing.T) {
	cases := []struct {
		status int
		kind   ai.Kind
	}{
		{http.StatusUnauthorized, ai.KindInvalidAPIKey},
		{http.StatusTooManyRequests, ai.KindRateLimitExceeded},
		{http.StatusServiceUnavailable, ai.KindModelOverloaded},
		{http.StatusInternalServerError, ai.KindProcessingError},
	}

	for _, tc := range cases {
		_, p := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
			if tc.status == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "7")
			}
			w.WriteHeader(tc.status)
		})

		_, err := p.Execute(context.Background(), ai.OpExplainCode,
			ai.CodeReviewParams{Code: "x := 1", Language: "go"}, nil)

		var ge *ai.Error
		require.True(t, errors.As(err, &ge), "status %d", tc.status)
		assert.Equal(t, tc.kind, ge.Kind, "status %d", tc.status)
		if tc.status == http.StatusTooManyRequests {
			assert.Equal(t, 7, ge.RetryAfter)
		}
	}
}

func TestValidate(t *testing.T) {
	p := openai.New("test-key")

	cases := []struct {
		name      string
		operation string
		params    ai.Params
		wantErr   bool
	}{
		{"valid content", ai.OpGenerateContent, ai.ContentParams{Prompt: "hi", Type: "seo"}, false},
		{"missing prompt", ai.OpGenerateContent, ai.ContentParams{Type: "seo"}, true},
		{"bad type", ai.OpGenerateContent, ai.ContentParams{Prompt: "hi", Type: "poem"}, true},
		{"bad tone", ai.OpGenerateContent, ai.ContentParams{Prompt: "hi", Type: "seo", Tone: "angry"}, true},
		{"valid code", ai.OpGenerateCode, ai.CodeParams{Prompt: "hi", Language: "go"}, false},
		{"missing language", ai.OpGenerateCode, ai.CodeParams{Prompt: "hi"}, true},
		{"valid review", ai.OpDebugCode, ai.CodeReviewParams{Code: "x", Language: "go"}, false},
		{"missing code", ai.OpExplainCode, ai.CodeReviewParams{Language: "go"}, true},
		{"valid image", ai.OpGenerateImage, ai.ImageGenerationParams{Prompt: "fox", Size: "512x512"}, false},
		{"bad size", ai.OpGenerateImage, ai.ImageGenerationParams{Prompt: "fox", Size: "2048x2048"}, true},
		{"bad quality", ai.OpGenerateImage, ai.ImageGenerationParams{Prompt: "fox", Size: "512x512", Quality: "ultra"}, true},
		{"wrong params type", ai.OpGenerateContent, ai.CodeParams{Prompt: "hi", Language: "go"}, true},
		{"unsupported op", ai.OpRemoveBackground, ai.BackgroundRemovalParams{ImageURL: "http://x"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Validate(tc.operation, tc.params)
			if tc.wantErr {
				var ge *ai.Error
				require.True(t, errors.As(err, &ge))
				assert.Equal(t, ai.KindInvalidRequest, ge.Kind)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSupports(t *testing.T) {
	p := openai.New("test-key")
	assert.True(t, p.Supports(ai.OpGenerateContent))
	assert.True(t, p.Supports(ai.OpGenerateImage))
	assert.False(t, p.Supports(ai.OpRemoveBackground))
}
