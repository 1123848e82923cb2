package country

import "sort"

// names maps every supported code to its display name. Regional and
// organizational pseudo-codes (EU, UN, WHO) are treated like countries.
var names = map[string]string{
	"AE": "UAE", "AR": "Argentina", "AU": "Australia", "BR": "Brazil",
	"CA": "Canada", "CH": "Switzerland", "CN": "China", "DE": "Germany",
	"ES": "Spain", "EU": "European Union", "FR": "France", "GB": "United Kingdom",
	"ID": "Indonesia", "IE": "Ireland", "IN": "India", "IT": "Italy",
	"JP": "Japan", "KR": "South Korea", "NG": "Nigeria", "NL": "Netherlands",
	"NZ": "New Zealand", "QA": "Qatar", "RU": "Russia", "SG": "Singapore",
	"TH": "Thailand", "TW": "Taiwan", "UN": "United Nations", "US": "United States",
	"VN": "Vietnam", "WHO": "WHO", "ZA": "South Africa",
}

// Codes returns all supported codes in processing order (alphabetical by code).
func Codes() []string {
	codes := make([]string, 0, len(names))
	for code := range names {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Name returns the display name for code, or the code itself when unknown.
func Name(code string) string {
	if n, ok := names[code]; ok {
		return n
	}
	return code
}

// Supported reports whether code is in the supported set.
func Supported(code string) bool {
	_, ok := names[code]
	return ok
}
