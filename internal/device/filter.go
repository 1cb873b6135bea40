package device

import "strings"

// Filter classifies raw device events as supported cameras by matching
// a configured keyword set against the device's vendor/model strings.
// Matching is case-insensitive substring; an empty keyword set rejects
// everything so a misconfigured daemon copies nothing rather than
// everything.
type Filter struct {
	keywords []string
}

func NewFilter(keywords []string) *Filter {
	cleaned := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			cleaned = append(cleaned, keyword)
		}
	}

	return &Filter{keywords: cleaned}
}

// Accepts reports whether the vendor/model pair matches any configured
// camera keyword.
func (filter *Filter) Accepts(vendor string, model string) bool {
	haystack := strings.ToLower(vendor + " " + model)
	for _, keyword := range filter.keywords {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}

	return false
}
