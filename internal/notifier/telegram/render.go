package telegram

import (
	"html"
	"strconv"
	"strings"

	"listingwatch/internal/listing"
)

// Render builds the HTML message for a record. Empty fields are skipped.
func Render(rec listing.Record, linkTemplate string) string {
	var b strings.Builder
	b.WriteString("🏠 <b>New listing</b>\n")

	if rec.Description != "" {
		b.WriteString(escape(rec.Description))
		b.WriteByte('\n')
	}
	if rec.Area != nil {
		b.WriteString("📐 ")
		b.WriteString(strconv.FormatFloat(*rec.Area, 'f', -1, 64))
		b.WriteString(" m²\n")
	}
	if rec.Address != "" {
		b.WriteString("📍 ")
		b.WriteString(escape(rec.Address))
		b.WriteByte('\n')
	}

	var prices []string
	for _, p := range []string{rec.Prices.Primary, rec.Prices.Secondary} {
		if p != "" {
			prices = append(prices, "<b>"+escape(p)+"</b>")
		}
	}
	if len(prices) > 0 {
		b.WriteString("💰 ")
		b.WriteString(strings.Join(prices, " / "))
		b.WriteByte('\n')
	}
	if rec.Prices.PerUnit != "" {
		b.WriteString("per m²: ")
		b.WriteString(escape(rec.Prices.PerUnit))
		b.WriteByte('\n')
	}

	if link := detailLink(rec, linkTemplate); link != "" {
		b.WriteString(`<a href="`)
		b.WriteString(html.EscapeString(link))
		b.WriteString(`">Details</a>`)
	}
	return strings.TrimRight(b.String(), "\n")
}

func detailLink(rec listing.Record, tmpl string) string {
	if rec.URL != "" {
		return rec.URL
	}
	if rec.ID == "" || !strings.Contains(tmpl, "{id}") {
		return ""
	}
	return strings.ReplaceAll(tmpl, "{id}", rec.ID)
}

// escape covers the three characters Telegram's HTML mode requires.
func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
