package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func testTx() *domain.Transaction {
	return &domain.Transaction{
		ID:                 "tx-1",
		Reference:          "TRX-2025-001",
		Amount:             45000,
		Currency:           "EUR",
		ReceiverName:       "Crypto Ventures FZE",
		Type:               domain.TypeTransfer,
		Channel:            domain.ChannelWeb,
		CountryOrigin:      "FRA",
		CountryDestination: "NGA",
		Timestamp:          time.Date(2025, 3, 5, 3, 0, 0, 0, time.UTC),
	}
}

func testFactors() []domain.RiskFactor {
	return []domain.RiskFactor{
		{Kind: domain.FactorAmountTier, Text: "Elevated amount: 45000.00 EUR"},
		{Kind: domain.FactorHighRiskDest, Text: "High-risk destination country: NGA (risk index 95)"},
		{Kind: domain.FactorCriticalCombo, Text: "MAXIMUM ALERT: critical combination detected"},
	}
}

func newTestExplainer(host string, timeoutSecs int) *Explainer {
	return NewExplainer(domain.ExplainerConfig{
		Host:        host,
		Model:       "mistral:7b-instruct",
		TimeoutSecs: timeoutSecs,
	}, "FRA", slog.Default())
}

func TestExplainGeneratedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("streaming requested")
		}
		if req.Model != "mistral:7b-instruct" {
			t.Errorf("model = %s", req.Model)
		}
		if !strings.Contains(req.Prompt, "TRX-2025-001") {
			t.Error("prompt missing transaction reference")
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "  This transaction is highly suspicious.  "})
	}))
	defer srv.Close()

	e := newTestExplainer(srv.URL, 5)
	got := e.Explain(context.Background(), testTx(), 92, testFactors())
	if got != "This transaction is highly suspicious." {
		t.Errorf("explanation = %q", got)
	}
}

func TestExplainFallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := newTestExplainer(srv.URL, 5)
	got := e.Explain(context.Background(), testTx(), 92, testFactors())
	if !strings.Contains(got, "92/100") {
		t.Errorf("fallback missing score: %q", got)
	}
	if !strings.Contains(got, "BLOCK") {
		t.Errorf("fallback missing critical recommendation: %q", got)
	}
}

func TestExplainFallbackOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		json.NewEncoder(w).Encode(generateResponse{Response: "too late"})
	}))
	defer srv.Close()

	e := NewExplainer(domain.ExplainerConfig{
		Host:  srv.URL,
		Model: "mistral:7b-instruct",
	}, "FRA", slog.Default())
	e.client.Timeout = 50 * time.Millisecond

	got := e.Explain(context.Background(), testTx(), 92, testFactors())
	if got == "" || got == "too late" {
		t.Errorf("expected fallback text, got %q", got)
	}
	if !strings.Contains(got, "CRITICAL ALERT") {
		t.Errorf("fallback missing intro: %q", got)
	}
}

func TestExplainFallbackOnConnectionRefused(t *testing.T) {
	e := newTestExplainer("http://127.0.0.1:1", 1)
	got := e.Explain(context.Background(), testTx(), 45, testFactors())
	if !strings.Contains(got, "45/100") {
		t.Errorf("fallback missing score: %q", got)
	}
}

func TestExplainFallbackOnEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "   "})
	}))
	defer srv.Close()

	e := newTestExplainer(srv.URL, 5)
	got := e.Explain(context.Background(), testTx(), 20, nil)
	if !strings.Contains(got, "NORMAL TRANSACTION") {
		t.Errorf("expected fallback for empty generation, got %q", got)
	}
}

func TestFallbackDeterministic(t *testing.T) {
	tx := testTx()
	factors := testFactors()
	first := FallbackExplanation(tx, 92, factors, "FRA")
	second := FallbackExplanation(tx, 92, factors, "FRA")
	if first != second {
		t.Error("fallback text differs across identical inputs")
	}
	if first == "" {
		t.Error("fallback text is empty")
	}
}

func TestFallbackRecommendationBands(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{95, "BLOCK"},
		{75, "SUSPEND"},
		{55, "MONITORING RECOMMENDED"},
		{35, "VIGILANCE"},
		{10, "No action required"},
	}
	for _, tc := range cases {
		got := FallbackExplanation(testTx(), tc.score, nil, "FRA")
		if !strings.Contains(got, tc.want) {
			t.Errorf("score %d: fallback missing %q: %q", tc.score, tc.want, got)
		}
		if !strings.Contains(got, fmt.Sprintf("%d/100", tc.score)) {
			t.Errorf("score %d: fallback missing score", tc.score)
		}
	}
}

func TestFallbackAnalysisSentences(t *testing.T) {
	got := FallbackExplanation(testTx(), 92, testFactors(), "FRA")
	if !strings.Contains(got, "Nigeria") {
		t.Errorf("fallback missing high-risk country name: %q", got)
	}
	if !strings.Contains(got, "nocturnal") {
		t.Errorf("fallback missing nocturnal sentence: %q", got)
	}
	// Amount, country and hour already fill the sentence cap here, so
	// the lower-priority beneficiary sentence must be dropped.
	if strings.Contains(got, "cryptocurrencies") {
		t.Errorf("sentence cap not applied: %q", got)
	}
}

func TestFallbackBeneficiarySentence(t *testing.T) {
	// Small domestic daytime payment: nothing above the beneficiary in
	// the priority order fires, so its sentence fits the cap.
	tx := testTx()
	tx.Amount = 120
	tx.CountryDestination = "FRA"
	tx.Timestamp = time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)

	got := FallbackExplanation(tx, 40, nil, "FRA")
	if !strings.Contains(got, "cryptocurrencies") {
		t.Errorf("fallback missing beneficiary sentence: %q", got)
	}

	tx.ReceiverName = "Horizon Holdings LLC"
	got = FallbackExplanation(tx, 40, nil, "FRA")
	if !strings.Contains(got, "shell company") {
		t.Errorf("fallback missing legal-structure sentence: %q", got)
	}
}

func TestFallbackLeftoverFactors(t *testing.T) {
	tx := testTx()
	tx.Amount = 100
	tx.ReceiverName = "Jean Dupont"
	tx.CountryDestination = ""
	tx.Timestamp = time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)

	factors := []domain.RiskFactor{
		{Kind: domain.FactorMLAnomaly, Text: "Behavioural model flagged the transaction as an anomaly"},
		{Kind: domain.FactorGlobalScore, Text: "Global risk score: 55/100 (MEDIUM)"},
	}
	got := FallbackExplanation(tx, 55, factors, "FRA")
	if !strings.Contains(got, "Behavioural model flagged") {
		t.Errorf("uncovered factor not included: %q", got)
	}
}

func TestStatusConnected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"mistral:7b-instruct"},{"name":"llama3:8b"}]}`))
	}))
	defer srv.Close()

	e := newTestExplainer(srv.URL, 5)
	status := e.Status(context.Background())
	if status.Status != "connected" {
		t.Errorf("status = %s, want connected", status.Status)
	}
	if !status.ModelAvailable {
		t.Error("configured model not reported available")
	}
	if len(status.AvailableModels) != 2 {
		t.Errorf("available models = %v", status.AvailableModels)
	}
}

func TestStatusDisconnected(t *testing.T) {
	e := newTestExplainer("http://127.0.0.1:1", 1)
	status := e.Status(context.Background())
	if status.Status != "disconnected" {
		t.Errorf("status = %s, want disconnected", status.Status)
	}
	if status.ModelAvailable {
		t.Error("model reported available while disconnected")
	}
}
