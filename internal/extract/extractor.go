// Package extract turns a listing results page into records.
//
// Extraction never fails: missing fields become empty values and cards
// without the anchor element are skipped.
package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"listingwatch/internal/listing"
	logx "listingwatch/pkg/logx"

	"github.com/PuerkitoBio/goquery"
)

// Selectors are CSS selectors for one card layout. Price spans are classified
// by substrings of their first class name.
type Selectors struct {
	Card        string `json:"card,omitempty"`
	Anchor      string `json:"anchor,omitempty"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Address     string `json:"address,omitempty"`
	Image       string `json:"image,omitempty"`
	Pagination  string `json:"pagination,omitempty"`

	PrimaryClass   string `json:"primary_class,omitempty"`
	SecondaryClass string `json:"secondary_class,omitempty"`
	PerUnitClass   string `json:"per_unit_class,omitempty"`
}

// DefaultSelectors match the kufar real-estate search page.
var DefaultSelectors = Selectors{
	Card:           "section",
	Anchor:         "a.styles_wrapper__Q06m9",
	Description:    "div.styles_parameters__7zKlL",
	Price:          "div.styles_price__gpHWH span",
	Address:        "span.styles_address__l6Qe_",
	Image:          "div.styles_image__7aRPM img",
	Pagination:     "div.styles_links__wrapper__ig13W a.styles_link__8m3I9",
	PrimaryClass:   "byr",
	SecondaryClass: "usd",
	PerUnitClass:   "meter",
}

// DefaultBaseURL resolves relative links on the default site.
const DefaultBaseURL = "https://re.kufar.by"

var idPattern = regexp.MustCompile(`/(\d+)\?`)

type Extractor struct {
	sel  Selectors
	base *url.URL
	log  logx.Logger
}

// New builds an extractor. Empty selector fields fall back to
// DefaultSelectors; an unparsable base URL falls back to DefaultBaseURL.
func New(sel Selectors, baseURL string, log logx.Logger) *Extractor {
	if log.IsZero() {
		log = logx.Nop()
	}
	sel = sel.withDefaults()
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		base, _ = url.Parse(DefaultBaseURL)
	}
	return &Extractor{sel: sel, base: base, log: log}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return Selectors{
		Card:           pick(s.Card, d.Card),
		Anchor:         pick(s.Anchor, d.Anchor),
		Description:    pick(s.Description, d.Description),
		Price:          pick(s.Price, d.Price),
		Address:        pick(s.Address, d.Address),
		Image:          pick(s.Image, d.Image),
		Pagination:     pick(s.Pagination, d.Pagination),
		PrimaryClass:   pick(s.PrimaryClass, d.PrimaryClass),
		SecondaryClass: pick(s.SecondaryClass, d.SecondaryClass),
		PerUnitClass:   pick(s.PerUnitClass, d.PerUnitClass),
	}
}

// Extract returns every card on the page in document order. Records are
// normalized but not filtered; usability is decided downstream.
func (e *Extractor) Extract(raw []byte) (out []listing.Record) {
	out = []listing.Record{}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("extract panicked; returning partial result", logx.Any("panic", r))
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		e.log.Warn("page not parseable", logx.Err(err))
		return out
	}

	doc.Find(e.sel.Card).Each(func(_ int, card *goquery.Selection) {
		a := card.Find(e.sel.Anchor).First()
		if a.Length() == 0 {
			return
		}
		out = append(out, e.record(a).Normalize())
	})
	e.log.Debug("page extracted", logx.Int("records", len(out)))
	return out
}

func (e *Extractor) record(a *goquery.Selection) listing.Record {
	href := a.AttrOr("href", "")
	var r listing.Record
	if m := idPattern.FindStringSubmatch(href); m != nil {
		r.ID = m[1]
	}
	if href != "" {
		r.URL = e.resolve(href)
	}

	r.Description = a.Find(e.sel.Description).First().Text()
	r.Address = a.Find(e.sel.Address).First().Text()

	a.Find(e.sel.Price).Each(func(_ int, span *goquery.Selection) {
		class := firstClass(span)
		switch {
		case class == "":
		case strings.Contains(class, e.sel.PrimaryClass):
			r.Prices.Primary = span.Text()
		case strings.Contains(class, e.sel.SecondaryClass):
			r.Prices.Secondary = span.Text()
		case strings.Contains(class, e.sel.PerUnitClass):
			r.Prices.PerUnit = span.Text()
		}
	})

	if src := a.Find(e.sel.Image).First().AttrOr("src", ""); src != "" {
		r.PhotoRef = e.resolve(src)
	}
	return r
}

// PaginationLinks returns absolute URLs of the page's pagination anchors in
// document order. Duplicates are kept; the fetcher deduplicates.
func (e *Extractor) PaginationLinks(raw []byte) (links []string) {
	links = []string{}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("pagination parse panicked", logx.Any("panic", r))
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return links
	}
	doc.Find(e.sel.Pagination).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		links = append(links, e.resolve(href))
	})
	return links
}

func (e *Extractor) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return e.base.ResolveReference(u).String()
}

func firstClass(s *goquery.Selection) string {
	fields := strings.Fields(s.AttrOr("class", ""))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
