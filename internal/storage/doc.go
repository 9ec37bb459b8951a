// Package storage persists the listing history the change detector diffs against.
//
// The history is a full list of records (not just fingerprints) so that
// notifications can always carry full detail. It is loaded once at startup
// and rewritten wholesale after every successful poll cycle.
//
// Drivers:
//   - "file":   a single JSON array, replaced atomically via temp file + rename
//   - "sqlite": SQLite database file, replaced inside one transaction
package storage
