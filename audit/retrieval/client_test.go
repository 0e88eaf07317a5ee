package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theimaginaryfoundation/handoff-audit/audit/provider"
)

const testDocumentID = "d25939ce-cae7-5636-9f04-4345f7f9c088"

func TestRagURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:7272", "http://localhost:7272/v3/retrieval/rag"},
		{"http://localhost:7272/", "http://localhost:7272/v3/retrieval/rag"},
		{"https://r2r.internal/v3", "https://r2r.internal/v3/retrieval/rag"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ragURL(tc.base), "base=%q", tc.base)
	}
}

func TestNewClient_RequiresDocumentID(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "document id")

	_, err = NewClient(testDocumentID, WithBaseURL(" "))
	require.Error(t, err)
}

func TestRetrieve_SendsFixedSettingsAndCleansAnswer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v3/retrieval/rag", r.URL.Path)
		require.Equal(t, "Bearer r2r-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"results": {"completion": "{\"policies\": []} [6a9e83b][261ad80]"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(testDocumentID, WithBaseURL(srv.URL), WithAPIKey("r2r-key"), WithRetryPolicy(provider.NoRetry()))
	require.NoError(t, err)

	answer, err := c.Retrieve(context.Background(), BuildQuery("Bot: hi"))
	require.NoError(t, err)
	require.Equal(t, `{"policies": []}`, answer)

	require.True(t, strings.HasSuffix(got["query"].(string), "Bot: hi\n"))
	settings := got["search_settings"].(map[string]any)
	require.Equal(t, "rag_fusion", settings["search_strategy"])
	require.Equal(t, float64(20), settings["limit"])
	require.Equal(t, "advanced", settings["search_mode"])
	filters := settings["filters"].(map[string]any)
	require.Equal(t, map[string]any{"$eq": testDocumentID}, filters["document_id"])
}

func TestRetrieve_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail": "bad filter"}`))
	}))
	defer srv.Close()

	c, err := NewClient(testDocumentID, WithBaseURL(srv.URL), WithRetryPolicy(provider.NoRetry()))
	require.NoError(t, err)

	_, err = c.Retrieve(context.Background(), "q")
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "bad filter")
}

func TestRetrieve_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results": {"completion": "ok"}}`))
	}))
	defer srv.Close()

	policy := provider.RetryPolicy{MaxAttempts: 3, ServerErrorWaits: []time.Duration{time.Millisecond}}
	c, err := NewClient(testDocumentID, WithBaseURL(srv.URL), WithRetryPolicy(policy))
	require.NoError(t, err)

	answer, err := c.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, "ok", answer)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetrieve_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewClient(testDocumentID, WithBaseURL(srv.URL), WithRetryPolicy(provider.NoRetry()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Retrieve(ctx, "q")
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCleanAnswer(t *testing.T) {
	require.Equal(t, "Refunds take 5 days.", CleanAnswer("Refunds take 5 days.[6a9e83b] "))
	require.Equal(t, "[Policy] stays", CleanAnswer("[Policy] stays"))
}

func TestHTTPStatusError_TruncatesBody(t *testing.T) {
	t.Parallel()

	err := &HTTPStatusError{StatusCode: 502, URL: "http://r2r/v3/retrieval/rag", Body: "  " + strings.Repeat("x", 1000) + "  "}
	msg := err.Error()
	require.Contains(t, msg, "unexpected status 502")
	require.True(t, strings.HasSuffix(msg, strings.Repeat("x", maxErrorBody)+"…"), msg)
	require.Len(t, err.Body, 1004)
}
