package listing

import (
	"encoding/json"
	"testing"
)

func TestFingerprintIgnoresIDAndPhoto(t *testing.T) {
	t.Parallel()
	a := Record{ID: "1", Address: "Янки Купалы ул, 3", Description: "71.3 м², этаж 1 из 3", PhotoRef: "https://x/1.jpg"}
	b := Record{ID: "2", Address: "янки  купалы ул,3", Description: "71.3 М²,\tэтаж 1 из 3", PhotoRef: "https://x/2.jpg"}
	if FingerprintOf(a) != FingerprintOf(b) {
		t.Fatalf("fingerprints differ: %q vs %q", FingerprintOf(a), FingerprintOf(b))
	}
	c := b
	c.Description = "72 м²"
	if FingerprintOf(a) == FingerprintOf(c) {
		t.Fatal("expected different fingerprint for different description")
	}
}

func TestUsable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{name: "empty", rec: Record{}, want: false},
		{name: "photo only", rec: Record{PhotoRef: "https://x/1.jpg", Prices: Prices{Primary: "1 р."}}, want: false},
		{name: "id only", rec: Record{ID: "1"}, want: true},
		{name: "address only", rec: Record{Address: "A1"}, want: true},
		{name: "description only", rec: Record{Description: "50 m2"}, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Usable(); got != tt.want {
				t.Fatalf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseArea(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{in: "71.3 м², этаж 1 из 3", want: 71.3, ok: true},
		{in: "50 m2", want: 50, ok: true},
		{in: "42,5 кв.м", want: 42.5, ok: true},
		{in: "30 sq m", want: 30, ok: true},
		{in: "этаж 2 из 5", ok: false},
		{in: "", ok: false},
	}
	for _, tt := range tests {
		got := ParseArea(tt.in)
		if !tt.ok {
			if got != nil {
				t.Fatalf("ParseArea(%q) = %v, want nil", tt.in, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Fatalf("ParseArea(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	r := Record{
		ID:          " 42 ",
		Description: "  50   m2\n этаж 1 ",
		Address:     "\tA1 ",
		PhotoRef:    "data:image/gif;base64,R0lGOD",
		URL:         "https://re.kufar.by/vi/42",
	}.Normalize()

	if r.ID != "42" || r.Description != "50 m2 этаж 1" || r.Address != "A1" {
		t.Fatalf("unexpected normalized record: %+v", r)
	}
	if r.PhotoRef != "" {
		t.Fatalf("PhotoRef = %q, want empty for non-http reference", r.PhotoRef)
	}
	if r.Area == nil || *r.Area != 50 {
		t.Fatalf("Area = %v, want 50", r.Area)
	}
	if r.URL != "https://re.kufar.by/vi/42" {
		t.Fatalf("URL = %q", r.URL)
	}
}

func TestUnmarshalLegacyShape(t *testing.T) {
	t.Parallel()
	raw := `{
		"id": "1014572788",
		"parameters": "71.3 м², этаж 1 из 3",
		"prices": {"byn": "1 711 р.", "usd": "555.03 $*", "per_meter": "24 p. / м²"},
		"address": "Янки Купалы ул, 3, Брест",
		"photo_url": "https://rms.kufar.by/v1/list_thumbs_2x/adim1/9b9b.jpg"
	}`
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Description != "71.3 м², этаж 1 из 3" {
		t.Fatalf("Description = %q", r.Description)
	}
	if r.Prices.Primary != "1 711 р." || r.Prices.Secondary != "555.03 $*" || r.Prices.PerUnit != "24 p. / м²" {
		t.Fatalf("Prices = %+v", r.Prices)
	}
	if r.PhotoRef == "" {
		t.Fatal("PhotoRef not mapped from photo_url")
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if _, ok := back["photoRef"]; !ok {
		t.Fatalf("expected current field names on write, got %s", out)
	}
	if _, ok := back["parameters"]; ok {
		t.Fatalf("legacy field leaked into output: %s", out)
	}
}

func TestFingerprintFallsBackToID(t *testing.T) {
	t.Parallel()
	a := FingerprintOf(Record{ID: "111"})
	b := FingerprintOf(Record{ID: " 222 "})
	if a == "" || a == b {
		t.Fatalf("id-only fingerprints = %q, %q", a, b)
	}
	if b != "id:222" {
		t.Fatalf("fingerprint = %q, want id:222", b)
	}
	// Content wins whenever there is any.
	if got := FingerprintOf(Record{ID: "111", Address: "A1"}); got != "a1" {
		t.Fatalf("fingerprint = %q, want a1", got)
	}
	if got := FingerprintOf(Record{}); got != "" {
		t.Fatalf("empty record fingerprint = %q", got)
	}
}
