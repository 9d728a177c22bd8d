package features

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func testTransaction() *domain.Transaction {
	return &domain.Transaction{
		ID:                 "tx-1",
		TenantID:           "tenant-a",
		Amount:             9500,
		Currency:           "EUR",
		Type:               domain.TypeTransfer,
		Channel:            domain.ChannelWeb,
		CountryOrigin:      "FRA",
		CountryDestination: "NGA",
		Timestamp:          time.Date(2025, 6, 14, 3, 30, 0, 0, time.UTC), // Saturday, 3am
	}
}

func TestExtractVectorLayout(t *testing.T) {
	ext := NewExtractor(NewEncoders(), slog.Default())
	v := ext.Extract(testTransaction())

	if len(v) != NumFeatures {
		t.Fatalf("expected %d features, got %d", NumFeatures, len(v))
	}
	if v[FeatAmount] != 9500 {
		t.Errorf("amount feature = %v, want 9500", v[FeatAmount])
	}
	if got, want := v[FeatAmountLog], math.Log1p(9500); math.Abs(got-want) > 1e-9 {
		t.Errorf("log amount feature = %v, want %v", got, want)
	}
	if v[FeatHour] != 3 {
		t.Errorf("hour feature = %v, want 3", v[FeatHour])
	}
	if v[FeatWeekend] != 1 {
		t.Errorf("weekend feature = %v, want 1", v[FeatWeekend])
	}
	if v[FeatNight] != 1 {
		t.Errorf("night feature = %v, want 1", v[FeatNight])
	}
	if v[FeatInternational] != 1 {
		t.Errorf("international feature = %v, want 1", v[FeatInternational])
	}
	if v[FeatCountryRisk] != 95 {
		t.Errorf("country risk feature = %v, want 95", v[FeatCountryRisk])
	}
	if v[FeatHighRiskFlag] != 1 {
		t.Errorf("high risk flag = %v, want 1", v[FeatHighRiskFlag])
	}
	if v[FeatRoundAmount] != 1 {
		t.Errorf("round amount feature = %v, want 1", v[FeatRoundAmount])
	}
	if v[FeatLargeAmount] != 1 {
		t.Errorf("large amount feature = %v, want 1", v[FeatLargeAmount])
	}
	if v[FeatVeryLargeAmount] != 0 {
		t.Errorf("very large amount feature = %v, want 0", v[FeatVeryLargeAmount])
	}
}

func TestExtractDomesticBenign(t *testing.T) {
	ext := NewExtractor(nil, nil)
	tx := testTransaction()
	tx.Amount = 49.99
	tx.CountryDestination = ""
	tx.Timestamp = time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC) // Tuesday, 2pm

	v := ext.Extract(tx)
	for _, feat := range []int{FeatWeekend, FeatNight, FeatInternational, FeatCountryRisk, FeatHighRiskFlag, FeatRoundAmount, FeatLargeAmount, FeatVeryLargeAmount} {
		if v[feat] != 0 {
			t.Errorf("feature %d = %v, want 0", feat, v[feat])
		}
	}
}

func TestLabelEncoderStableCodes(t *testing.T) {
	a := NewLabelEncoder([]string{"web", "mobile", "atm"})
	b := NewLabelEncoder([]string{"atm", "web", "mobile"})
	for _, value := range []string{"atm", "mobile", "web"} {
		codeA, okA := a.Transform(value)
		codeB, okB := b.Transform(value)
		if !okA || !okB {
			t.Fatalf("value %q not found after fit", value)
		}
		if codeA != codeB {
			t.Errorf("value %q: codes differ across fit orders (%d vs %d)", value, codeA, codeB)
		}
	}
}

func TestLabelEncoderUnseenValue(t *testing.T) {
	enc := NewLabelEncoder([]string{"web", "mobile"})
	code, ok := enc.Transform("carrier_pigeon")
	if ok {
		t.Fatal("expected unseen value to be reported")
	}
	if code != 0 {
		t.Errorf("unseen value code = %d, want 0", code)
	}
}

func TestCountryRisk(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{"PRK", 99},
		{"NGA", 95},
		{"TUR", 45},
		{"HKG", 30},
		{"FRA", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := CountryRisk(tc.code); got != tc.want {
			t.Errorf("CountryRisk(%q) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestSuspiciousHours(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		want := hour <= 5 || hour == 23
		if got := IsSuspiciousHour(hour); got != want {
			t.Errorf("IsSuspiciousHour(%d) = %v, want %v", hour, got, want)
		}
	}
}
