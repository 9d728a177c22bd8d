// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// Transaction types. The scoring vocabulary is closed: the categorical
// encoders are fit on exactly these values at training time.
const (
	TypeTransfer    = "transfer"
	TypeDirectDebit = "direct_debit"
	TypeCard        = "card"
	TypeWithdrawal  = "withdrawal"
	TypeDeposit     = "deposit"
)

// Transaction channels. Closed vocabulary, same rule as types.
const (
	ChannelWeb    = "web"
	ChannelMobile = "mobile"
	ChannelBranch = "branch"
	ChannelATM    = "atm"
	ChannelAPI    = "api"
)

// TransactionTypes returns the closed type vocabulary in canonical order.
func TransactionTypes() []string {
	return []string{TypeTransfer, TypeDirectDebit, TypeCard, TypeWithdrawal, TypeDeposit}
}

// TransactionChannels returns the closed channel vocabulary in canonical order.
func TransactionChannels() []string {
	return []string{ChannelWeb, ChannelMobile, ChannelBranch, ChannelATM, ChannelAPI}
}

// Transaction review statuses. A transaction moves through
// pending → analyzing → analyzed, after which reviewer actions apply.
const (
	StatusPending            = "pending"
	StatusAnalyzing          = "analyzing"
	StatusAnalyzed           = "analyzed"
	StatusReviewed           = "reviewed"
	StatusConfirmedFraud     = "confirmed_fraud"
	StatusCleared            = "cleared"
	StatusUnderInvestigation = "under_investigation"
	StatusPendingCall        = "pending_call"
	StatusBlocked            = "blocked"
)

// statusTransitions lists the legal next statuses for each status.
// The engine itself only ever produces the analyzing → analyzed step;
// everything after analyzed is a reviewer action.
var statusTransitions = map[string][]string{
	StatusPending:   {StatusAnalyzing},
	StatusAnalyzing: {StatusAnalyzed},
	StatusAnalyzed: {
		StatusReviewed, StatusConfirmedFraud, StatusCleared,
		StatusUnderInvestigation, StatusPendingCall, StatusBlocked,
	},
	StatusUnderInvestigation: {StatusConfirmedFraud, StatusCleared, StatusBlocked, StatusPendingCall},
	StatusPendingCall:        {StatusConfirmedFraud, StatusCleared, StatusBlocked},
	StatusReviewed:           {StatusConfirmedFraud, StatusCleared},
}

// CanTransition reports whether a status change is legal.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction represents a financial transaction to be scored.
// The scoring engine never mutates it; analysis results are written
// back through the repository by the caller.
type Transaction struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	Reference string `json:"reference"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Parties
	SenderAccount   string `json:"senderAccount"`
	ReceiverAccount string `json:"receiverAccount"`
	SenderName      string `json:"senderName,omitempty"`
	ReceiverName    string `json:"receiverName,omitempty"`

	// Classification
	Type    string `json:"type"`
	Channel string `json:"channel"`

	// ISO 3166-1 alpha-3 codes. Empty means domestic.
	CountryOrigin      string `json:"countryOrigin,omitempty"`
	CountryDestination string `json:"countryDestination,omitempty"`

	Description string `json:"description,omitempty"`

	// Temporal. The timestamp's hour and weekday feed the timing rules
	// directly; no timezone normalization is applied.
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Analysis results, populated once the transaction reaches analyzed.
	Status       string     `json:"status"`
	FraudScore   *int       `json:"fraudScore,omitempty"`
	IsSuspicious bool       `json:"isSuspicious"`
	Explanation  string     `json:"explanation,omitempty"`
	AnalysisDate *time.Time `json:"analysisDate,omitempty"`
}

// TransactionRequest is the API request payload for creating a transaction.
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

// ToTransaction converts a request to a Transaction domain object.
func (r *TransactionRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()
	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}
	channel := r.Channel
	if channel == "" {
		channel = ChannelWeb
	}
	return &Transaction{
		Reference:          r.Reference,
		Amount:             r.Amount,
		Currency:           r.Currency,
		SenderAccount:      r.SenderAccount,
		ReceiverAccount:    r.ReceiverAccount,
		SenderName:         r.SenderName,
		ReceiverName:       r.ReceiverName,
		Type:               r.Type,
		Channel:            channel,
		CountryOrigin:      r.CountryOrigin,
		CountryDestination: r.CountryDestination,
		Description:        r.Description,
		Timestamp:          ts,
		CreatedAt:          now,
		Status:             StatusPending,
	}
}
