package source

// DefaultUserAgents is the rotation pool used when none is configured.
// Rotation is cosmetic; nothing depends on which one is picked.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

var acceptLanguages = []string{
	"ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
	"en-US,en;q=0.9",
	"be-BY,be;q=0.9,ru;q=0.8,en;q=0.6",
}

func (f *Fetcher) headers() map[string]string {
	f.rngMu.Lock()
	ua := f.cfg.UserAgents[f.rng.Intn(len(f.cfg.UserAgents))]
	lang := acceptLanguages[f.rng.Intn(len(acceptLanguages))]
	f.rngMu.Unlock()

	// Accept-Encoding is left to net/http so gzip is decoded transparently.
	return map[string]string{
		"User-Agent":      ua,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": lang,
		"Referer":         "https://www.google.com/",
		"DNT":             "1",
	}
}
