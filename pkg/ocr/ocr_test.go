package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPlainTextExtractorDownloadsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("  1. x = 2\n"))
	}))
	defer server.Close()

	text, err := PlainTextExtractor{Timeout: time.Second}.Extract(context.Background(), Artifact{URL: server.URL, MimeType: "text/plain"})
	require.NoError(t, err)
	require.Equal(t, "1. x = 2", text)
}

func TestPlainTextExtractorReportsDownloadFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := PlainTextExtractor{Timeout: time.Second}.Extract(context.Background(), Artifact{URL: server.URL})
	require.ErrorIs(t, err, ErrExtractionFailed)

	_, err = PlainTextExtractor{}.Extract(context.Background(), Artifact{})
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestHTTPExtractorReadsEnvelope(t *testing.T) {
	var received ocrRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"msg":"ok","data":{"content":"answer text"}}`))
	}))
	defer server.Close()

	extractor, err := NewHTTPExtractor(server.URL, time.Second, zerolog.Nop())
	require.NoError(t, err)

	text, err := extractor.Extract(context.Background(), Artifact{Key: "k", URL: "https://cdn/a.png", MimeType: "image/png"})
	require.NoError(t, err)
	require.Equal(t, "answer text", text)
	require.Equal(t, "https://cdn/a.png", received.URL)
}

func TestHTTPExtractorTreatsNonZeroCodeAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":1001,"msg":"blurry","data":{"content":""}}`))
	}))
	defer server.Close()

	extractor, err := NewHTTPExtractor(server.URL, time.Second, zerolog.Nop())
	require.NoError(t, err)

	_, err = extractor.Extract(context.Background(), Artifact{URL: "https://cdn/a.png"})
	require.ErrorIs(t, err, ErrExtractionFailed)
	require.ErrorContains(t, err, "blurry")
}

func TestOpenAIExtractorRejectsNonImages(t *testing.T) {
	extractor, err := NewOpenAIExtractor(OpenAIConfig{APIKey: "test", Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = extractor.Extract(context.Background(), Artifact{URL: "https://cdn/a.pdf", MimeType: "application/pdf"})
	require.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestOpenAIExtractorParsesTranscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"status\":\"ok\",\"text\":\"Q1: 42\"}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	extractor, err := NewOpenAIExtractor(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Logger: zerolog.Nop()})
	require.NoError(t, err)

	text, err := extractor.Extract(context.Background(), Artifact{URL: "https://cdn/a.png", MimeType: "image/png"})
	require.NoError(t, err)
	require.Equal(t, "Q1: 42", text)
}

func TestParseTranscription(t *testing.T) {
	text, err := parseTranscription(`{"status":"ok","text":""}`)
	require.NoError(t, err)
	require.Empty(t, text)

	_, err = parseTranscription(`{"status":"unreadable","text":""}`)
	require.ErrorIs(t, err, ErrExtractionFailed)

	_, err = parseTranscription(`{"status":"maybe","text":"x"}`)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestRouterDispatchesByMediaType(t *testing.T) {
	images := ExtractorFunc(func(context.Context, Artifact) (string, error) { return "image", nil })
	text := ExtractorFunc(func(context.Context, Artifact) (string, error) { return "text", nil })

	router := NewRouter().Handle("image/*", images).Handle("text/plain", text).Handle("application/pdf", nil)

	got, err := router.Extract(context.Background(), Artifact{MimeType: "image/heic"})
	require.NoError(t, err)
	require.Equal(t, "image", got)

	got, err = router.Extract(context.Background(), Artifact{MimeType: "text/plain; charset=utf-8"})
	require.NoError(t, err)
	require.Equal(t, "text", got)

	_, err = router.Extract(context.Background(), Artifact{MimeType: "application/pdf"})
	require.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestRouterSupports(t *testing.T) {
	text := ExtractorFunc(func(context.Context, Artifact) (string, error) { return "text", nil })
	router := NewRouter().Handle("text/plain", text).Handle("image/*", text)

	require.True(t, router.Supports("text/plain; charset=utf-8"))
	require.True(t, router.Supports("image/webp"))
	require.False(t, router.Supports("application/pdf"))

	var _ MediaRouter = router
}
