package snapshot

import "markbook/internal/core/canon"

// ContentEquals reports whether two snapshots carry the same content once
// volatile fields are stripped. Used to short-circuit whole-snapshot no-op
// imports: equal means "no changes", zero writes
func ContentEquals(a, b Raw) (bool, error) {
	return canon.Equal(a.ForComparison(), b.ForComparison())
}

// ContentHash fingerprints a snapshot's comparable content. The processor
// persists this per teacher and compares it against the next import
func ContentHash(s Raw) (string, error) {
	return canon.Hash(s.ForComparison())
}
