package store

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// ContentHash returns the hash stored with a document to detect unchanged
// files on re-index.
func ContentHash(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

// FactsHash computes an order-independent hash over the supertype facts of
// a document. Line changes do NOT affect the hash, so edits that only move
// declarations around do not count as hierarchy changes.
func FactsHash(refs []TypeRef) string {
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i] = r.EnclosingType + "\x00" + r.Qualifier + "\x00" + r.SimpleName + "\x00" + r.SuperQualifier + "\x00" + r.SuperName
	}
	sort.Strings(keys)

	d := xxhash.New()
	for _, k := range keys {
		d.WriteString(k)
		d.WriteString("\n")
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
