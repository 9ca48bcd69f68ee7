package query

import "strings"

// Canonical domain vocabulary. Markets and localities are tenant-specific
// and come from the backend's filter-options endpoint instead.
var (
	Platforms = []string{"Amisys", "Facets", "QNXT", "Power MHS", "HealthRules"}

	CaseTypes = []string{
		"Claims",
		"Appeals and Grievances",
		"Enrollment",
		"Correspondence",
		"Prior Authorization",
	}

	MainLOBs = []string{"Medicaid", "Medicare", "Marketplace", "Commercial", "Duals"}
)

// stateCodes maps lowercase full state names to their 2-letter codes.
var stateCodes = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "district of columbia": "DC",
}

var validStateCodes = func() map[string]bool {
	codes := make(map[string]bool, len(stateCodes))
	for _, code := range stateCodes {
		codes[code] = true
	}
	return codes
}()

// NormalizeState converts a full state name or code to the canonical
// 2-letter code. Unknown values are returned unchanged with ok=false.
func NormalizeState(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if code, ok := stateCodes[strings.ToLower(trimmed)]; ok {
		return code, true
	}
	upper := strings.ToUpper(trimmed)
	if validStateCodes[upper] {
		return upper, true
	}
	return value, false
}

// StateNames returns the full state names, for fuzzy matching user input.
func StateNames() []string {
	names := make([]string, 0, len(stateCodes))
	for name := range stateCodes {
		names = append(names, name)
	}
	return names
}
