package listing

import (
	"regexp"
	"strconv"
	"strings"
)

// reArea matches "71.3 м²", "50 m2", "42,5 кв.м", "30 sq m".
var reArea = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:м²|м2|m²|m2|кв\.?\s*м|sq\.?\s*m)`)

// ParseArea extracts the first square-meter value from a description.
// It returns nil when nothing recognizable is present.
func ParseArea(description string) *float64 {
	m := reArea.FindStringSubmatch(description)
	if len(m) != 2 {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}
