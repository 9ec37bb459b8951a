// Package listing holds the record type that flows through the pipeline
// and the content fingerprint used to recognize the same listing across fetches.
package listing

import (
	"encoding/json"
	"net/url"
	"strings"
	"unicode"
)

// Prices carries the price strings exactly as shown by the source.
// Any subset may be empty.
type Prices struct {
	Primary   string `json:"primary,omitempty"`
	Secondary string `json:"secondary,omitempty"`
	PerUnit   string `json:"perUnit,omitempty"`
}

func (p Prices) IsZero() bool { return p.Primary == "" && p.Secondary == "" && p.PerUnit == "" }

// Record is one discovered listing.
type Record struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Area        *float64 `json:"area,omitempty"`
	Prices      Prices   `json:"prices"`
	Address     string   `json:"address"`
	PhotoRef    string   `json:"photoRef,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// Usable reports whether the record carries anything to identify it by.
// A record with no id, no address and no description never reaches dedup.
func (r Record) Usable() bool {
	return r.ID != "" || r.Address != "" || r.Description != ""
}

// Normalize cleans text fields and derives Area from Description.
// It is applied at the extraction boundary and on load.
func (r Record) Normalize() Record {
	r.ID = strings.TrimSpace(r.ID)
	r.Description = collapseSpace(r.Description)
	r.Address = collapseSpace(r.Address)
	r.Prices = Prices{
		Primary:   collapseSpace(r.Prices.Primary),
		Secondary: collapseSpace(r.Prices.Secondary),
		PerUnit:   collapseSpace(r.Prices.PerUnit),
	}
	r.PhotoRef = absoluteHTTP(r.PhotoRef)
	r.URL = absoluteHTTP(r.URL)
	r.Area = ParseArea(r.Description)
	return r
}

// Key returns a short label for logs: the id when present, otherwise the address.
func (r Record) Key() string {
	if r.ID != "" {
		return r.ID
	}
	if r.Address != "" {
		return r.Address
	}
	return truncate(r.Description, 40)
}

// legacyRecord is the on-disk shape written by earlier versions
// (parameters / photo_url / prices.byn|usd|per_meter).
type legacyRecord struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Parameters  string   `json:"parameters"`
	Area        *float64 `json:"area"`
	Prices      struct {
		Primary   string `json:"primary"`
		Secondary string `json:"secondary"`
		PerUnit   string `json:"perUnit"`
		BYN       string `json:"byn"`
		USD       string `json:"usd"`
		PerMeter  string `json:"per_meter"`
	} `json:"prices"`
	Address  string `json:"address"`
	PhotoRef string `json:"photoRef"`
	PhotoURL string `json:"photo_url"`
	URL      string `json:"url"`
}

// UnmarshalJSON accepts both the current field names and the legacy ones.
func (r *Record) UnmarshalJSON(b []byte) error {
	var l legacyRecord
	if err := json.Unmarshal(b, &l); err != nil {
		return err
	}
	*r = Record{
		ID:          l.ID,
		Description: firstNonEmpty(l.Description, l.Parameters),
		Area:        l.Area,
		Prices: Prices{
			Primary:   firstNonEmpty(l.Prices.Primary, l.Prices.BYN),
			Secondary: firstNonEmpty(l.Prices.Secondary, l.Prices.USD),
			PerUnit:   firstNonEmpty(l.Prices.PerUnit, l.Prices.PerMeter),
		},
		Address:  l.Address,
		PhotoRef: firstNonEmpty(l.PhotoRef, l.PhotoURL),
		URL:      l.URL,
	}
	return nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func absoluteHTTP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}
