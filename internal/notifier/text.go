package notifier

import (
	"strconv"
	"strings"

	"listingwatch/internal/listing"
)

// PlainText renders a record for text-only channels. Empty fields are
// omitted.
func PlainText(rec listing.Record) string {
	var b strings.Builder
	line := func(label, v string) {
		if v == "" {
			return
		}
		if label != "" {
			b.WriteString(label)
			b.WriteString(": ")
		}
		b.WriteString(v)
		b.WriteByte('\n')
	}

	line("", rec.Description)
	if rec.Area != nil {
		line("Area", strconv.FormatFloat(*rec.Area, 'f', -1, 64)+" m²")
	}
	line("Address", rec.Address)
	line("Price", rec.Prices.Primary)
	line("Price (USD)", rec.Prices.Secondary)
	line("Per m²", rec.Prices.PerUnit)
	line("Link", rec.URL)
	line("Photo", rec.PhotoRef)
	line("ID", rec.ID)
	return strings.TrimRight(b.String(), "\n")
}

// Title is a one-line summary for subjects and log messages.
func Title(rec listing.Record) string {
	parts := make([]string, 0, 2)
	if rec.Address != "" {
		parts = append(parts, rec.Address)
	}
	if rec.Prices.Primary != "" {
		parts = append(parts, rec.Prices.Primary)
	} else if rec.Prices.Secondary != "" {
		parts = append(parts, rec.Prices.Secondary)
	}
	if len(parts) == 0 {
		return "New listing " + rec.Key()
	}
	return "New listing: " + strings.Join(parts, ", ")
}
