// Package explain generates analyst-facing explanations for fraud
// analyses. The primary path calls an Ollama-compatible generation
// endpoint; a deterministic template fallback covers every failure so
// an explanation is always produced.
package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const statusProbeTimeout = 5 * time.Second

// Explainer produces explanation text for analysis results.
// Safe for concurrent use.
type Explainer struct {
	cfg         domain.ExplainerConfig
	homeCountry string
	client      *http.Client
	logger      *slog.Logger
}

// NewExplainer creates an explainer bound to the configured generation
// service. The home country feeds the fallback templates.
func NewExplainer(cfg domain.ExplainerConfig, homeCountry string, logger *slog.Logger) *Explainer {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Explainer{
		cfg:         cfg,
		homeCountry: homeCountry,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Explain returns explanation text for a scored transaction. It never
// fails: timeout, connection errors and bad responses all fall back to
// the deterministic template path.
func (e *Explainer) Explain(ctx context.Context, tx *domain.Transaction, score int, factors []domain.RiskFactor) string {
	text, err := e.generate(ctx, buildPrompt(tx, score, factors))
	if err != nil {
		e.logger.Warn("generation service unavailable, using fallback explanation",
			"tx_id", tx.ID, "host", e.cfg.Host, "error", err)
		return FallbackExplanation(tx, score, factors, e.homeCountry)
	}
	e.logger.Info("explanation generated", "tx_id", tx.ID, "model", e.cfg.Model)
	return text
}

func (e *Explainer) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  e.cfg.Model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: 0.3,
			TopP:        0.9,
			NumPredict:  400,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call generation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("generation service returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", fmt.Errorf("generation service returned empty text")
	}
	return text, nil
}

func buildPrompt(tx *domain.Transaction, score int, factors []domain.RiskFactor) string {
	var b strings.Builder
	b.WriteString("You are a senior fraud detection analyst at a retail bank.\n")
	b.WriteString("Analyze this transaction and provide a PROFESSIONAL explanation for the compliance team.\n\n")

	b.WriteString("=== TRANSACTION ===\n")
	fmt.Fprintf(&b, "Reference: %s\n", orDefault(tx.Reference, "not specified"))
	fmt.Fprintf(&b, "Amount: %.2f %s\n", tx.Amount, tx.Currency)
	fmt.Fprintf(&b, "Type: %s\n", tx.Type)
	fmt.Fprintf(&b, "Channel: %s\n", tx.Channel)
	fmt.Fprintf(&b, "Date/Time: %s\n", tx.Timestamp.Format("02/01/2006 at 15:04"))
	fmt.Fprintf(&b, "Sender: %s\n", orDefault(tx.SenderName, "not specified"))
	fmt.Fprintf(&b, "Beneficiary: %s\n", orDefault(tx.ReceiverName, "not specified"))
	fmt.Fprintf(&b, "Origin country: %s\n", orDefault(tx.CountryOrigin, "domestic"))
	fmt.Fprintf(&b, "Destination country: %s\n", orDefault(tx.CountryDestination, "domestic"))
	fmt.Fprintf(&b, "Purpose: %s\n\n", orDefault(tx.Description, "not specified"))

	b.WriteString("=== RISK ANALYSIS ===\n")
	fmt.Fprintf(&b, "Score: %d/100\n", score)
	fmt.Fprintf(&b, "Level: %s\n", strings.ToUpper(domain.RiskLevelFor(score)))
	b.WriteString("Factors:\n")
	if len(factors) == 0 {
		b.WriteString("- No major factor\n")
	}
	for _, f := range factors {
		fmt.Fprintf(&b, "- %s\n", f.Text)
	}

	b.WriteString("\nWrite 4-5 professional sentences:\n")
	b.WriteString("1. A clear risk level statement\n")
	b.WriteString("2. An explanation of the 2-3 main factors\n")
	b.WriteString("3. AML/KYC context where relevant\n")
	b.WriteString("4. A precise recommendation\n\n")
	b.WriteString("Respond ONLY with the explanation.")
	return b.String()
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// ServiceStatus describes the generation service for the status endpoint.
type ServiceStatus struct {
	Status          string   `json:"status"`
	Host            string   `json:"host"`
	Model           string   `json:"model"`
	ModelAvailable  bool     `json:"modelAvailable"`
	AvailableModels []string `json:"availableModels,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Status probes the generation service with a short timeout and
// reports whether the configured model is available.
func (e *Explainer) Status(ctx context.Context) ServiceStatus {
	status := ServiceStatus{
		Status: "disconnected",
		Host:   e.cfg.Host,
		Model:  e.cfg.Model,
	}

	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("generation service status probe failed", "host", e.cfg.Host, "error", err)
		status.Error = "cannot connect to generation service"
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("status probe returned %d", resp.StatusCode)
		return status
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		status.Error = err.Error()
		return status
	}

	status.Status = "connected"
	for _, m := range tags.Models {
		status.AvailableModels = append(status.AvailableModels, m.Name)
		if strings.Contains(m.Name, e.cfg.Model) || strings.Contains(e.cfg.Model, m.Name) {
			status.ModelAvailable = true
		}
	}
	return status
}
