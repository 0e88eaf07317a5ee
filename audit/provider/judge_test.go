package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
)

func chatCompletionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestOpenAIJudge_SendsRubricAndReturnsRawText(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody("  ```json\n{\"policy_violated\": false}\n```  ")))
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", srv.URL)
	j, err := NewOpenAIJudge(&client, "", WithJudgeRetryPolicy(NoRetry()))
	require.NoError(t, err)

	out, err := j.Judge(context.Background(), audit.JudgeRequest{
		ConversationID: "c1",
		Messages:       "Bot: hi",
		Policies:       json.RawMessage("{\n  \"policies\": []\n}"),
	})
	require.NoError(t, err)
	require.Equal(t, "```json\n{\"policy_violated\": false}\n```", out)

	require.Equal(t, DefaultJudgeModel, body["model"])
	require.Equal(t, float64(0), body["temperature"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].(map[string]any)["role"])
	require.Equal(t, ComplianceJudgePrompt, msgs[0].(map[string]any)["content"])
	require.Equal(t, "Messages: Bot: hi\nPolicies: {\n  \"policies\": []\n}", msgs[1].(map[string]any)["content"])

	format := body["response_format"].(map[string]any)
	require.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	require.Equal(t, "ComplianceVerdict", schema["name"])
	require.Equal(t, true, schema["strict"])
}

func TestOpenAIJudge_WithoutStructuredOutput(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody("{}")))
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", srv.URL)
	j, err := NewOpenAIJudge(&client, "gpt-4o-mini", WithStructuredOutput(false), WithJudgeRetryPolicy(NoRetry()))
	require.NoError(t, err)

	_, err = j.Judge(context.Background(), audit.JudgeRequest{Messages: "Bot: hi", Policies: json.RawMessage("{}")})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", body["model"])
	_, ok := body["response_format"]
	require.False(t, ok)
}

func TestOpenAIJudge_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`))
			return
		}
		_, _ = w.Write([]byte(chatCompletionBody("{}")))
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", srv.URL)
	policy := RetryPolicy{MaxAttempts: 2, RateLimitWaits: []time.Duration{time.Millisecond}}
	j, err := NewOpenAIJudge(&client, "", WithJudgeRetryPolicy(policy))
	require.NoError(t, err)

	out, err := j.Judge(context.Background(), audit.JudgeRequest{Messages: "Bot: hi", Policies: json.RawMessage("{}")})
	require.NoError(t, err)
	require.Equal(t, "{}", out)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIJudge_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad schema", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", srv.URL)
	j, err := NewOpenAIJudge(&client, "", WithJudgeRetryPolicy(RetryPolicy{MaxAttempts: 3}))
	require.NoError(t, err)

	_, err = j.Judge(context.Background(), audit.JudgeRequest{Messages: "Bot: hi", Policies: json.RawMessage("{}")})
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerateSchema_VerdictIsStrict(t *testing.T) {
	t.Parallel()

	s := GenerateSchema[verdictResponse]()
	require.Equal(t, false, s["additionalProperties"])
	require.ElementsMatch(t, []string{"policies_violated", "policy_violated", "violation_summary"}, s["required"])

	items := s["properties"].(map[string]interface{})["policies_violated"].(map[string]interface{})["items"].(map[string]interface{})
	require.Equal(t, false, items["additionalProperties"])
	require.ElementsMatch(t, []string{"description", "title"}, items["required"])
}

func TestNewOpenAIJudge_NilClient(t *testing.T) {
	_, err := NewOpenAIJudge(nil, "")
	require.Error(t, err)
}
