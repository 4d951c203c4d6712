package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planit/internal/domain"
)

func newGeminiTestServer(t *testing.T, status int, body string, capture *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if capture != nil {
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, capture)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGemini(t *testing.T, baseURL string) *GeminiClient {
	t.Helper()
	c, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "gemini-test",
	}, newTestLogger())
	require.NoError(t, err)
	return c
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{}, newTestLogger())
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestGeminiGenerate_Text(t *testing.T) {
	var sent map[string]any
	srv := newGeminiTestServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello"},{"text":" there"}]}}],
		  "usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2,"totalTokenCount":7}}`, &sent)
	g := newTestGemini(t, srv.URL)

	resp, err := g.Generate(context.Background(), domain.GenerateRequest{
		Contents:          []domain.Turn{domain.NewUserTurn("hi", []domain.Blob{{MIMEType: "application/pdf", Data: []byte("%PDF")}})},
		SystemInstruction: "Be brief.",
		Tools: []domain.ToolDeclaration{{
			Name:        "get_current_utc_time",
			Description: "now",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", resp.Text)
	assert.Empty(t, resp.FunctionCalls)
	assert.Equal(t, domain.RoleModel, resp.Turn.Role)

	require.NotNil(t, sent)
	contents := sent["contents"].([]any)
	require.Len(t, contents, 1)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0], "inlineData")
	assert.Equal(t, "hi", parts[1].(map[string]any)["text"])
	assert.Contains(t, sent, "systemInstruction")
	assert.Contains(t, sent, "tools")
	assert.Contains(t, sent, "toolConfig")
}

func TestGeminiGenerate_FunctionCalls(t *testing.T) {
	srv := newGeminiTestServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[
			{"functionCall":{"name":"get_current_utc_time","args":{}}},
			{"functionCall":{"name":"get_user_schedule","args":{"days":1}}}
		]}}]}`, nil)
	g := newTestGemini(t, srv.URL)

	resp, err := g.Generate(context.Background(), domain.GenerateRequest{
		Contents: []domain.Turn{domain.NewUserTurn("what's on tomorrow?", nil)},
	})
	require.NoError(t, err)
	require.Len(t, resp.FunctionCalls, 2)
	assert.Equal(t, "get_current_utc_time", resp.FunctionCalls[0].Name)
	assert.Equal(t, "get_user_schedule", resp.FunctionCalls[1].Name)
	assert.EqualValues(t, 1, resp.FunctionCalls[1].Args["days"])
	assert.Len(t, resp.Turn.FunctionCalls(), 2)
}

func TestGeminiGenerate_ResponseSchema(t *testing.T) {
	var sent map[string]any
	srv := newGeminiTestServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"title\":\"X\"}"}]}}]}`, &sent)
	g := newTestGemini(t, srv.URL)

	resp, err := g.Generate(context.Background(), domain.GenerateRequest{
		Contents:       []domain.Turn{domain.NewUserTurn("extract", nil)},
		ResponseSchema: json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"}}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"X"}`, resp.Text)

	gen, ok := sent["generationConfig"].(map[string]any)
	require.True(t, ok, "generationConfig missing: %v", sent)
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.NotContains(t, sent, "tools")
}

func TestGeminiGenerate_NoCandidates(t *testing.T) {
	srv := newGeminiTestServer(t, http.StatusOK, `{"candidates":[]}`, nil)
	g := newTestGemini(t, srv.URL)

	_, err := g.Generate(context.Background(), domain.GenerateRequest{
		Contents: []domain.Turn{domain.NewUserTurn("hi", nil)},
	})
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestGeminiGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, domain.ErrRateLimit},
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuthInvalid},
		{"forbidden", http.StatusForbidden, domain.ErrAuthInvalid},
		{"too large", http.StatusRequestEntityTooLarge, domain.ErrContextTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := fmt.Sprintf(`{"error":{"code":%d,"message":"nope","status":"FAILED"}}`, tc.status)
			srv := newGeminiTestServer(t, tc.status, body, nil)
			g := newTestGemini(t, srv.URL)

			_, err := g.Generate(context.Background(), domain.GenerateRequest{
				Contents: []domain.Turn{domain.NewUserTurn("hi", nil)},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestToGenaiContents_RejectsEmptyTurn(t *testing.T) {
	_, err := toGenaiContents([]domain.Turn{{Role: domain.RoleUser}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestToGenaiContents_FunctionResults(t *testing.T) {
	contents, err := toGenaiContents([]domain.Turn{{
		Role: domain.RoleUser,
		Parts: []domain.Part{
			{FunctionResult: &domain.FunctionResult{Name: "a", Response: map[string]any{"ok": true}}},
			{FunctionResult: &domain.FunctionResult{Name: "b", Response: map[string]any{"error": "x"}}},
		},
	}})
	require.NoError(t, err)
	require.Len(t, contents[0].Parts, 2)
	assert.Equal(t, "a", contents[0].Parts[0].FunctionResponse.Name)
	assert.Equal(t, "x", contents[0].Parts[1].FunctionResponse.Response["error"])
}
