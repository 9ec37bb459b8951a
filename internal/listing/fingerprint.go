package listing

import (
	"strings"
	"unicode"
)

// Fingerprint identifies "the same listing" across fetches.
//
// It is address+description with every whitespace rune removed, lowercased.
// The source id is deliberately not part of it: ids get omitted or rotated
// between snapshots. Re-posts with edited text produce a new fingerprint.
//
// A record with neither address nor description falls back to "id:"+ID, so
// id-only records never share the empty key.
type Fingerprint string

const idKeyPrefix = "id:"

func FingerprintOf(r Record) Fingerprint {
	var b strings.Builder
	b.Grow(len(r.Address) + len(r.Description))
	for _, s := range [2]string{r.Address, r.Description} {
		for _, c := range s {
			if unicode.IsSpace(c) {
				continue
			}
			b.WriteRune(unicode.ToLower(c))
		}
	}
	if b.Len() == 0 {
		if id := strings.TrimSpace(r.ID); id != "" {
			return Fingerprint(idKeyPrefix + id)
		}
	}
	return Fingerprint(b.String())
}

// Set is a fingerprint set. The zero value is not usable; use NewSet.
type Set map[Fingerprint]struct{}

func NewSet(capacity int) Set { return make(Set, capacity) }

// Add inserts fp and reports whether it was absent.
func (s Set) Add(fp Fingerprint) bool {
	if _, ok := s[fp]; ok {
		return false
	}
	s[fp] = struct{}{}
	return true
}

func (s Set) Has(fp Fingerprint) bool {
	_, ok := s[fp]
	return ok
}
