// Package detector diffs freshly extracted records against the committed history.
package detector

import "listingwatch/internal/listing"

// Detect returns the records of fresh whose fingerprint is not yet known,
// in source order, and the merged history (existing followed by the new records).
//
// Duplicates inside fresh collapse to their first occurrence. Unusable records
// are dropped before fingerprinting. The inputs are never modified.
func Detect(existing, fresh []listing.Record) (newRecords, merged []listing.Record) {
	seen := listing.NewSet(len(existing) + len(fresh))
	for _, r := range existing {
		if !r.Usable() {
			continue
		}
		seen.Add(listing.FingerprintOf(r))
	}

	merged = make([]listing.Record, len(existing), len(existing)+len(fresh))
	copy(merged, existing)

	for _, r := range fresh {
		if !r.Usable() {
			continue
		}
		if !seen.Add(listing.FingerprintOf(r)) {
			continue
		}
		newRecords = append(newRecords, r)
		merged = append(merged, r)
	}
	return newRecords, merged
}

// Usable filters out records that cannot be fingerprinted meaningfully and
// reports how many were dropped.
func Usable(records []listing.Record) ([]listing.Record, int) {
	out := make([]listing.Record, 0, len(records))
	for _, r := range records {
		if r.Usable() {
			out = append(out, r)
		}
	}
	return out, len(records) - len(out)
}
