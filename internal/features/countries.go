package features

// Country risk indices, keyed by ISO 3166-1 alpha-3 code.
// High-risk entries follow the FATF black/grey list weighting used at
// training time; the index doubles as the geography rule contribution.

// HighRiskCountries maps destinations to a 70-99 risk index.
var HighRiskCountries = map[string]int{
	"NGA": 95, "RUS": 85, "IRN": 95, "PRK": 99, "AFG": 90,
	"SYR": 95, "YEM": 85, "PAK": 70, "MMR": 80, "VEN": 75,
	"HTI": 70, "LBY": 85, "SSD": 85, "COD": 75, "SOM": 90,
}

// MediumRiskCountries maps destinations to a 30-45 risk index.
var MediumRiskCountries = map[string]int{
	"CHN": 40, "TUR": 45, "ARE": 35, "HKG": 30, "PHL": 40,
	"THA": 35, "MAR": 30, "TUN": 30, "SEN": 35, "CIV": 40,
	"CMR": 40, "BRA": 30, "MEX": 35,
}

// CountryRisk returns the risk index for a destination country.
// Unknown or domestic codes score 0.
func CountryRisk(code string) int {
	if risk, ok := HighRiskCountries[code]; ok {
		return risk
	}
	if risk, ok := MediumRiskCountries[code]; ok {
		return risk
	}
	return 0
}

// IsHighRisk reports whether a country is on the high-risk list.
func IsHighRisk(code string) bool {
	_, ok := HighRiskCountries[code]
	return ok
}

// suspiciousHours are the night hours plus 23h.
var suspiciousHours = map[int]bool{
	0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 23: true,
}

// IsSuspiciousHour reports whether an hour falls in the suspicious set.
func IsSuspiciousHour(hour int) bool {
	return suspiciousHours[hour]
}
