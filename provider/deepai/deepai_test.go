package deepai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/lumenlab/aigateway"
	"github.com/lumenlab/aigateway/provider/deepai"
)

// testBackend serves the remover endpoint at / and the generated output
// image at /out.png.
func testBackend(t *testing.T, outputContentType string) (*httptest.Server, *http.Request, *[]byte) {
	t.Helper()

	var captured http.Request
	var capturedBody []byte

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/out.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", outputContentType)
		w.Write([]byte("image-bytes"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		captured = *r
		capturedBody, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(map[string]any{
			"id":         "job-1",
			"output_url": srv.URL + "/out.png",
		})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &captured, &capturedBody
}

func TestRemoveBackground_URLInputUsesJSON(t *testing.T) {
	srv, captured, body := testBackend(t, "image/png")
	p := deepai.New("test-key", deepai.WithBaseURL(srv.URL))

	var milestones []int
	res, err := p.Execute(context.Background(), ai.OpRemoveBackground,
		ai.BackgroundRemovalParams{ImageURL: "https://example.com/in.png"},
		func(pct int) { milestones = append(milestones, pct) })

	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/out.png", res.Output)
	assert.Equal(t, []int{10, 50, 100}, milestones)

	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.Equal(t, "test-key", captured.Header.Get("api-key"))
	assert.Contains(t, string(*body), "https://example.com/in.png")
}

func TestRemoveBackground_BytesInputUsesMultipart(t *testing.T) {
	srv, captured, body := testBackend(t, "image/png")
	p := deepai.New("test-key", deepai.WithBaseURL(srv.URL))

	_, err := p.Execute(context.Background(), ai.OpRemoveBackground,
		ai.BackgroundRemovalParams{ImageData: []byte{0x89, 'P', 'N', 'G'}}, nil)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(captured.Header.Get("Content-Type"), "multipart/form-data"))
	assert.Contains(t, string(*body), `name="image"`)
}

func TestRemoveBackground_VerificationFailureResetsProgress(t *testing.T) {
	srv, _, _ := testBackend(t, "text/html")
	p := deepai.New("test-key", deepai.WithBaseURL(srv.URL))

	var milestones []int
	_, err := p.Execute(context.Background(), ai.OpRemoveBackground,
		ai.BackgroundRemovalParams{ImageURL: "https://example.com/in.png"},
		func(pct int) { milestones = append(milestones, pct) })

	var ge *ai.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, ai.KindProcessingError, ge.Kind)
	assert.Contains(t, ge.Message, "verify")
	assert.Equal(t, 0, milestones[len(milestones)-1])
}

func TestRemoveBackground_MissingOutputURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "job-1"})
	}))
	t.Cleanup(srv.Close)
	p := deepai.New("test-key", deepai.WithBaseURL(srv.URL))

	_, err := p.Execute(context.Background(), ai.OpRemoveBackground,
		ai.BackgroundRemovalParams{ImageURL: "https://example.com/in.png"}, nil)

	var ge *ai.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, ai.KindProcessingError, ge.Kind)
}

func TestRemoveBackground_MapsHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	p := deepai.New("test-key", deepai.WithBaseURL(srv.URL))

	_, err := p.Execute(context.Background(), ai.OpRemoveBackground,
		ai.BackgroundRemovalParams{ImageURL: "https://example.com/in.png"}, nil)

	var ge *ai.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, ai.KindModelOverloaded, ge.Kind)
}

func TestValidate(t *testing.T) {
	p := deepai.New("test-key")

	assert.NoError(t, p.Validate(ai.OpRemoveBackground,
		ai.BackgroundRemovalParams{ImageURL: "https://example.com/in.png"}))
	assert.NoError(t, p.Validate(ai.OpRemoveBackground,
		ai.BackgroundRemovalParams{ImageData: []byte{1}}))

	assert.Error(t, p.Validate(ai.OpRemoveBackground, ai.BackgroundRemovalParams{}))
	assert.Error(t, p.Validate(ai.OpRemoveBackground,
		ai.BackgroundRemovalParams{ImageURL: "https://x", ImageData: []byte{1}}))
	assert.Error(t, p.Validate(ai.OpRemoveBackground,
		ai.BackgroundRemovalParams{ImageURL: "ftp://example.com/in.png"}))
	assert.Error(t, p.Validate(ai.OpGenerateImage,
		ai.ImageGenerationParams{Prompt: "fox", Size: "512x512"}))
}
