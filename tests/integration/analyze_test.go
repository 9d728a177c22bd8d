//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel fraud
// scoring engine.
//
// These tests verify the COMPLETE analysis pipeline:
//
//	Transaction → ML component + Rule components → Aggregation → Explanation
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. TRANSACTION: A payment between a sender and a receiver account,
//    carrying type, channel, countries and a timestamp.
//
// 2. COMPONENTS: Five weighted sub-scores, each 0-100:
//    - ml_model (0.35): isolation forest anomaly score, neutral 50 when untrained
//    - amount (0.25): tiers, structuring windows, round amounts
//    - geography (0.20): destination risk index plus cross-border bonus
//    - timing (0.10): nocturnal, late hour, weekend
//    - beneficiary (0.10): suspicious keywords, risky legal forms, first transfer
//
// 3. BOOSTERS: Multiplicative combinations (critical combo x1.5,
//    new international x1.3, laundering pattern x1.4) applied on the
//    weighted sum before clamping to 0-100.
//
// 4. VERDICT: score >= threshold (default 70) flags the transaction
//    suspicious; the risk level bands are minimal/low/medium/high/critical.
//
// The server under test needs no pre-seeded data; every scenario
// ingests its own transactions.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// TransactionRequest is the payload sent to POST /transactions
type TransactionRequest struct {
	Reference          string    `json:"reference,omitempty"`
	Amount             float64   `json:"amount"`
	Currency           string    `json:"currency"`
	SenderAccount      string    `json:"senderAccount"`
	ReceiverAccount    string    `json:"receiverAccount"`
	SenderName         string    `json:"senderName,omitempty"`
	ReceiverName       string    `json:"receiverName,omitempty"`
	Type               string    `json:"type"`
	Channel            string    `json:"channel,omitempty"`
	CountryOrigin      string    `json:"countryOrigin,omitempty"`
	CountryDestination string    `json:"countryDestination,omitempty"`
	Description        string    `json:"description,omitempty"`
	Timestamp          time.Time `json:"timestamp,omitempty"`
}

// AnalysisResponse is what POST /transactions/{id}/analyze returns
type AnalysisResponse struct {
	AnalysisID  string   `json:"analysisId"`
	TxID        string   `json:"txId"`
	Reference   string   `json:"reference"`
	Score       int      `json:"score"`
	Suspicious  bool     `json:"suspicious"`
	RiskLevel   string   `json:"riskLevel"`
	Factors     []string `json:"factors"`
	Explanation string   `json:"explanation"`
	Metadata    struct {
		TraceID       string `json:"traceId"`
		ScoringMs     int64  `json:"scoringMs"`
		TotalMs       int64  `json:"totalMs"`
		EngineVersion string `json:"engineVersion"`
	} `json:"metadata"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func postJSON(t *testing.T, config TestConfig, path string, body []byte, withTenant bool) (*http.Response, []byte) {
	t.Helper()

	httpReq, err := http.NewRequest("POST", config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if withTenant {
		httpReq.Header.Set("X-Tenant-ID", config.TenantID)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, respBody
}

func ingest(t *testing.T, config TestConfig, req TransactionRequest) string {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	resp, respBody := postJSON(t, config, "/transactions", body, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.StatusCode, string(respBody))
	}

	var tx struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &tx); err != nil {
		t.Fatalf("Failed to unmarshal transaction: %v (body: %s)", err, string(respBody))
	}
	return tx.ID
}

func analyze(t *testing.T, config TestConfig, txID string) AnalysisResponse {
	t.Helper()

	resp, respBody := postJSON(t, config, "/transactions/"+txID+"/analyze", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result AnalysisResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}
	return result
}

func ingestAndAnalyze(t *testing.T, config TestConfig, req TransactionRequest) AnalysisResponse {
	t.Helper()
	return analyze(t, config, ingest(t, config, req))
}

// weekdayAfternoon is a quiet Tuesday 14:30, outside every timing rule.
var weekdayAfternoon = time.Date(2025, 6, 3, 14, 30, 0, 0, time.UTC)

// tuesdayNight is deep in the nocturnal window.
var tuesdayNight = time.Date(2025, 6, 3, 3, 12, 0, 0, time.UTC)

// ============================================================================
// SCENARIO 1: Benign Domestic Payment (No Flag)
// ============================================================================

func TestBenignTransaction_NotSuspicious(t *testing.T) {
	/*
	   SCENARIO: A €45.90 card payment to a local bakery on a Tuesday afternoon.

	   EXPECTED BEHAVIOR:
	   - amount: below every tier → 0
	   - geography: no destination → 0
	   - timing: weekday afternoon → 0
	   - beneficiary: clean name, first transfer adds 35 at weight 0.10
	   - ml_model: neutral 50 when untrained

	   FINAL DECISION: score well below 70 → not suspicious
	*/
	config := getTestConfig()

	result := ingestAndAnalyze(t, config, TransactionRequest{
		Amount:          45.90,
		Currency:        "EUR",
		SenderAccount:   "acc-benign-001",
		ReceiverAccount: "acc-benign-002",
		ReceiverName:    "Boulangerie Martin",
		Type:            "card",
		Timestamp:       weekdayAfternoon,
	})

	if result.Suspicious {
		t.Errorf("Expected benign transaction not to be flagged, score=%d", result.Score)
	}
	if result.Score >= 50 {
		t.Errorf("Expected low score (< 50), got %d", result.Score)
	}

	t.Logf("✓ Benign transaction passed: score=%d, level=%s", result.Score, result.RiskLevel)
}

// ============================================================================
// SCENARIO 2: Critical Combination (Amount + Geography + Timing)
// ============================================================================

func TestCriticalCombination_Suspicious(t *testing.T) {
	/*
	   SCENARIO: €45,000 transfer to a crypto shell in Nigeria at 3am.

	   EXPECTED BEHAVIOR:
	   - amount >= 10000, high-risk destination and nocturnal hour together
	     trigger the critical-combination booster (x1.5)
	   - keyword "crypto" and legal form "fze" both fire on the beneficiary
	   - first transfer to this receiver adds the new-beneficiary factor

	   FINAL DECISION: score clamps into the critical band → suspicious
	*/
	config := getTestConfig()

	result := ingestAndAnalyze(t, config, TransactionRequest{
		Reference:          "e2e-critical",
		Amount:             45000,
		Currency:           "EUR",
		SenderAccount:      "acc-critical-001",
		ReceiverAccount:    "acc-critical-002",
		ReceiverName:       "Crypto Ventures FZE",
		Type:               "transfer",
		CountryOrigin:      "FRA",
		CountryDestination: "NGA",
		Description:        "urgent transfer",
		Timestamp:          tuesdayNight,
	})

	if !result.Suspicious {
		t.Errorf("Expected suspicious verdict, score=%d", result.Score)
	}
	if result.RiskLevel != "critical" {
		t.Errorf("Expected critical risk level, got %s (score=%d)", result.RiskLevel, result.Score)
	}
	if len(result.Factors) < 4 {
		t.Errorf("Expected several risk factors, got %v", result.Factors)
	}
	if result.Explanation == "" {
		t.Error("Expected an explanation (generated or fallback)")
	}

	t.Logf("✓ Critical combination alerted: score=%d, level=%s, factors=%d",
		result.Score, result.RiskLevel, len(result.Factors))
}

// ============================================================================
// SCENARIO 3: Structuring Window Boundary
// ============================================================================

func TestStructuringWindow_ScoresAbovePlainAmount(t *testing.T) {
	/*
	   SCENARIO: €9,500 sits in the 9000-9999 structuring window (tier 25
	   plus structuring 40 = amount 65); €10,500 is a plain large amount
	   (tier 45). With every other component identical, the structured
	   amount must end up with the higher final score.

	   WHY THIS TEST:
	   Catches off-by-one regressions in the window boundaries and proves
	   the sub-threshold pattern outranks a larger plain transfer.
	*/
	config := getTestConfig()

	structured := ingestAndAnalyze(t, config, TransactionRequest{
		Amount:          9500,
		Currency:        "EUR",
		SenderAccount:   "acc-struct-001",
		ReceiverAccount: "acc-struct-002",
		ReceiverName:    "Jean Dupont",
		Type:            "transfer",
		Timestamp:       weekdayAfternoon,
	})

	plain := ingestAndAnalyze(t, config, TransactionRequest{
		Amount:          10500,
		Currency:        "EUR",
		SenderAccount:   "acc-plain-001",
		ReceiverAccount: "acc-plain-002",
		ReceiverName:    "Jean Dupont",
		Type:            "transfer",
		Timestamp:       weekdayAfternoon,
	})

	if structured.Score <= plain.Score {
		t.Errorf("Expected structuring (%d) to outscore plain large amount (%d)",
			structured.Score, plain.Score)
	}

	t.Logf("✓ Structuring boundary: 9500 → %d, 10500 → %d", structured.Score, plain.Score)
}

// ============================================================================
// SCENARIO 4: Known Beneficiary Lowers The Score
// ============================================================================

func TestRepeatTransfer_DropsNewBeneficiaryFactor(t *testing.T) {
	/*
	   SCENARIO: Two identical transfers between the same accounts. The
	   first has no history (new beneficiary +35 at weight 0.10); the
	   second sees the prior transaction and skips the factor.

	   EXPECTED: second score strictly lower than the first.
	*/
	config := getTestConfig()

	req := TransactionRequest{
		Amount:          1200,
		Currency:        "EUR",
		SenderAccount:   "acc-repeat-001",
		ReceiverAccount: "acc-repeat-002",
		ReceiverName:    "Marie Curie",
		Type:            "transfer",
		Timestamp:       weekdayAfternoon,
	}

	first := ingestAndAnalyze(t, config, req)
	second := ingestAndAnalyze(t, config, req)

	if second.Score >= first.Score {
		t.Errorf("Expected repeat transfer (%d) to score below first transfer (%d)",
			second.Score, first.Score)
	}

	t.Logf("✓ Beneficiary history: first=%d, repeat=%d", first.Score, second.Score)
}

// ============================================================================
// SCENARIO 5: Reviewer Status Lifecycle
// ============================================================================

func TestStatusLifecycle(t *testing.T) {
	/*
	   SCENARIO: pending → (analyze) → analyzed → confirmed_fraud, then an
	   illegal transition out of the terminal status.

	   EXPECTED:
	   - legal reviewer transition returns 200
	   - transition out of confirmed_fraud returns 409
	*/
	config := getTestConfig()

	txID := ingest(t, config, TransactionRequest{
		Amount:             45000,
		Currency:           "EUR",
		SenderAccount:      "acc-lifecycle-001",
		ReceiverAccount:    "acc-lifecycle-002",
		ReceiverName:       "Crypto Ventures FZE",
		Type:               "transfer",
		CountryDestination: "NGA",
		Timestamp:          tuesdayNight,
	})
	analyze(t, config, txID)

	body, _ := json.Marshal(map[string]string{"status": "confirmed_fraud"})
	resp, respBody := postJSON(t, config, "/transactions/"+txID+"/status", body, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 confirming fraud, got %d: %s", resp.StatusCode, string(respBody))
	}

	body, _ = json.Marshal(map[string]string{"status": "cleared"})
	resp, _ = postJSON(t, config, "/transactions/"+txID+"/status", body, true)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for transition out of confirmed_fraud, got %d", resp.StatusCode)
	}

	t.Logf("✓ Status lifecycle enforced")
}

// ============================================================================
// SCENARIO 6: Input Validation
// ============================================================================

func TestZeroAmount_Error(t *testing.T) {
	config := getTestConfig()

	body, _ := json.Marshal(TransactionRequest{
		Amount:          0, // Invalid!
		Currency:        "EUR",
		SenderAccount:   "acc-001",
		ReceiverAccount: "acc-002",
		Type:            "transfer",
	})
	resp, _ := postJSON(t, config, "/transactions", body, true)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero amount, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: zero amount → HTTP %d", resp.StatusCode)
}

func TestUnknownType_Error(t *testing.T) {
	config := getTestConfig()

	body, _ := json.Marshal(TransactionRequest{
		Amount:          100,
		Currency:        "EUR",
		SenderAccount:   "acc-001",
		ReceiverAccount: "acc-002",
		Type:            "wire", // Not in the closed vocabulary
	})
	resp, _ := postJSON(t, config, "/transactions", body, true)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: unknown type → HTTP %d", resp.StatusCode)
}

func TestMissingTenantHeader_Error(t *testing.T) {
	config := getTestConfig()

	body, _ := json.Marshal(TransactionRequest{
		Amount:          100,
		Currency:        "EUR",
		SenderAccount:   "acc-001",
		ReceiverAccount: "acc-002",
		Type:            "transfer",
	})
	resp, _ := postJSON(t, config, "/transactions", body, false)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing tenant, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing tenant → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 7: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify the analysis response includes all required
	   metadata. This keeps the API contract stable for clients.
	*/
	config := getTestConfig()

	result := ingestAndAnalyze(t, config, TransactionRequest{
		Amount:          100,
		Currency:        "EUR",
		SenderAccount:   "acc-metadata-001",
		ReceiverAccount: "acc-metadata-002",
		Type:            "transfer",
		Timestamp:       weekdayAfternoon,
	})

	if result.AnalysisID == "" {
		t.Error("Missing analysisId")
	}
	if result.TxID == "" {
		t.Error("Missing txId")
	}
	if result.Score < 0 || result.Score > 100 {
		t.Errorf("Score out of range: %d (expected 0-100)", result.Score)
	}
	switch result.RiskLevel {
	case "minimal", "low", "medium", "high", "critical":
	default:
		t.Errorf("Invalid risk level: %s", result.RiskLevel)
	}
	if result.Metadata.EngineVersion == "" {
		t.Error("Missing metadata.engineVersion")
	}
	// Note: TotalMs can be 0 for very fast operations (sub-millisecond)
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	t.Logf("✓ Metadata complete: analysisId=%s, score=%d, level=%s, totalMs=%d",
		result.AnalysisID[:8], result.Score, result.RiskLevel, result.Metadata.TotalMs)
}

// ============================================================================
// SCENARIO 8: Dashboard Stats
// ============================================================================

func TestStatsEndpoint(t *testing.T) {
	config := getTestConfig()

	ingestAndAnalyze(t, config, TransactionRequest{
		Amount:          10000,
		Currency:        "EUR",
		SenderAccount:   "acc-stats-001",
		ReceiverAccount: "acc-stats-002",
		Type:            "transfer",
		Timestamp:       weekdayAfternoon,
	})

	httpReq, _ := http.NewRequest("GET", config.BaseURL+"/transactions/stats", nil)
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from stats, got %d", resp.StatusCode)
	}

	var stats struct {
		TotalTransactions int `json:"totalTransactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.TotalTransactions < 1 {
		t.Errorf("Expected at least one transaction in stats, got %d", stats.TotalTransactions)
	}

	t.Logf("✓ Stats: total=%d", stats.TotalTransactions)
}
