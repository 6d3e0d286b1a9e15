package textgen

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/copassenger-api/internal/upstream"
)

func newTestGemini(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Gemini {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	g, err := NewGemini(context.Background(), Config{APIKey: "test-key", Model: "gemini-2.5-flash", Timeout: timeout, BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	return g
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestGenerate_ReturnsText(t *testing.T) {
	var gotPrompt string
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:generateContent"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.Unmarshal(body, &req)
		if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			gotPrompt = req.Contents[0].Parts[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"messages\":[]}"}]}}]}`)
	}, 5*time.Second)

	out, err := g.Generate(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, `{"messages":[]}`, out)
	assert.Equal(t, "hello there", gotPrompt)
}

func TestGenerate_UpstreamError(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)
	}, 5*time.Second)

	_, err := g.Generate(context.Background(), "hi")
	require.Error(t, err)
	kind, ok := upstream.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, upstream.KindUpstream, kind)
}

func TestGenerate_Timeout(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	_, err := g.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, upstream.IsTimeout(err))
}
