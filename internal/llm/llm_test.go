package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"archpub/internal/config"
)

func TestOpenAIComplete(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  <p>Generated</p>\n"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
	out, err := client.Complete(context.Background(), "describe the system")
	require.NoError(t, err)

	assert.Equal(t, "<p>Generated</p>", out)
	assert.Equal(t, config.DefaultOpenAIModel, got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "describe the system", got.Messages[0].Content)
}

func TestOpenAICompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		is      error
	}{
		{name: "http status", status: http.StatusUnauthorized, body: `{"error":{"message":"bad key"}}`, wantErr: "status 401"},
		{name: "api error", status: http.StatusOK, body: `{"error":{"message":"quota"}}`, wantErr: "API error: quota"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, is: ErrNoCompletion},
		{name: "bad json", status: http.StatusOK, body: `not json`, wantErr: "failed to parse response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewOpenAIClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
			_, err := client.Complete(context.Background(), "p")
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			} else {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			assert.Equal(t, 1, calls, "failures must not be retried")
		})
	}
}

func TestOpenAIMissingKey(t *testing.T) {
	client := NewOpenAIClient(config.OpenAIConfig{})
	_, err := client.Complete(context.Background(), "p")
	assert.EqualError(t, err, "API key not configured")
	assert.Equal(t, config.DefaultOpenAIModel, client.Model())
}

type fakeModels struct {
	model  string
	prompt string
	resp   *genai.GenerateContentResponse
	err    error
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func TestGeminiComplete(t *testing.T) {
	fake := &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(" <h1>Arch</h1> ", genai.RoleModel)}},
	}}
	client := newGeminiClient(fake, "")

	out, err := client.Complete(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Arch</h1>", out)
	assert.Equal(t, config.DefaultGeminiModel, fake.model)
	assert.Equal(t, "summarize", fake.prompt)
}

func TestGeminiCompleteErrors(t *testing.T) {
	_, err := newGeminiClient(&fakeModels{resp: &genai.GenerateContentResponse{}}, "m").Complete(context.Background(), "p")
	assert.ErrorIs(t, err, ErrNoCompletion)

	boom := errors.New("boom")
	_, err = newGeminiClient(&fakeModels{err: boom}, "m").Complete(context.Background(), "p")
	assert.ErrorIs(t, err, boom)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), config.GeminiConfig{})
	assert.Error(t, err)
}
