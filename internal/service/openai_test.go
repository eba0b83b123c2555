package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"matchengine/internal/config"
)

func newTestOpenAIClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewOpenAIClient(&config.OpenAIConfig{
		APIKey:              "test-key",
		APIBase:             srv.URL + "/v1",
		ChatModel:           "gpt-test",
		ChatTemperature:     0.2,
		EmbeddingModel:      "embed-test",
		EmbeddingDimensions: 3,
		BatchSize:           2,
		Timeout:             "5s",
	}, zap.NewNop())
	client.batchPause = 0
	return client
}

func TestOpenAIComplete(t *testing.T) {
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-test" || req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("unexpected request: %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "rank these" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"matches\":[]}"}}],"usage":{"total_tokens":12}}`))
	})

	out, err := client.Complete(context.Background(), "system", "rank these")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"matches":[]}` {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestOpenAIStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"type":"rate_limit_exceeded"}}`, want: ErrRateLimited},
		{name: "quota via 429", status: http.StatusTooManyRequests, body: `{"error":{"code":"insufficient_quota"}}`, want: ErrQuotaExceeded},
		{name: "payment required", status: http.StatusPaymentRequired, body: `{}`, want: ErrQuotaExceeded},
		{name: "server error", status: http.StatusBadGateway, body: `bad gateway`, want: ErrRankingUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Complete(context.Background(), "s", "u")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var oerr *OracleError
			if !errors.As(err, &oerr) || oerr.StatusCode != tt.status || oerr.Provider != "openai" {
				t.Fatalf("unexpected error detail: %+v", oerr)
			}
		})
	}
}

func TestOpenAINoChoices(t *testing.T) {
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	})
	if _, err := client.Complete(context.Background(), "s", "u"); !errors.Is(err, ErrRankingUnavailable) {
		t.Fatalf("expected ranking unavailable, got %v", err)
	}
}

func TestOpenAIDisabled(t *testing.T) {
	client := NewOpenAIClient(&config.OpenAIConfig{}, nil)
	if client.IsEnabled() {
		t.Fatalf("client without key reports enabled")
	}
	if _, err := client.Complete(context.Background(), "s", "u"); !errors.Is(err, ErrRankingUnavailable) {
		t.Fatalf("expected ranking unavailable, got %v", err)
	}
	if _, err := client.CreateEmbeddings(context.Background(), []string{"x"}); err == nil {
		t.Fatalf("expected error from disabled client")
	}
}

func TestOpenAICreateEmbeddingsBatches(t *testing.T) {
	var batches []int
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req EmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "embed-test" || req.Dimensions != 3 {
			t.Errorf("unexpected request: %+v", req)
		}
		batches = append(batches, len(req.Input))

		var resp EmbeddingResponse
		resp.Model = req.Model
		// Reverse order to check index mapping.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{float32(len(req.Input[i])), 0, 0}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	got, err := client.CreateEmbeddings(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("embeddings: %v", err)
	}
	if len(batches) != 2 || batches[0] != 2 || batches[1] != 1 {
		t.Fatalf("unexpected batches %v", batches)
	}
	for i, want := range []float32{1, 2, 3} {
		if got[i][0] != want {
			t.Fatalf("embedding %d out of order: %v", i, got[i])
		}
	}
}

func TestOpenAICreateEmbeddingsMissingItem(t *testing.T) {
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2,3],"index":0}],"model":"embed-test"}`))
	})
	if _, err := client.CreateEmbeddings(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatalf("expected error for missing embedding")
	}
}
