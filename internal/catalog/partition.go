// Package catalog loads product records and groups them into per-type buckets.
package catalog

import (
	"sort"

	"github.com/timmy/stylematch/internal/domain"
)

// Entry is one record inside a bucket.
type Entry struct {
	Seq      int // 1-based, assigned per bucket in catalog order
	Position int // 0-based index in the source catalog
	Record   domain.ProductRecord
}

// Bucket holds the records of one product type in catalog order.
// Seq numbers are dense: entry i has Seq i+1.
type Bucket struct {
	Type    string
	entries []Entry
}

// Len returns the number of entries.
func (b *Bucket) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Get returns the entry with the given sequence number.
func (b *Bucket) Get(seq int) (Entry, bool) {
	if b == nil || seq < 1 || seq > len(b.entries) {
		return Entry{}, false
	}
	return b.entries[seq-1], true
}

// Entries returns the bucket's entries in Seq order. The slice is shared; do not modify it.
func (b *Bucket) Entries() []Entry {
	if b == nil {
		return nil
	}
	return b.entries
}

// Buckets maps a recognized product type to its bucket. Types with no records
// have no bucket.
type Buckets map[string]*Bucket

// Partition groups records by ProductType in a single in-order pass. Records
// with an unrecognized type are left out. Nothing is sorted or deduplicated.
func Partition(records []domain.ProductRecord) Buckets {
	buckets := make(Buckets, len(domain.RecognizedTypes))
	for pos, r := range records {
		if !domain.IsRecognizedType(r.ProductType) {
			continue
		}
		b, ok := buckets[r.ProductType]
		if !ok {
			b = &Bucket{Type: r.ProductType}
			buckets[r.ProductType] = b
		}
		b.entries = append(b.entries, Entry{
			Seq:      len(b.entries) + 1,
			Position: pos,
			Record:   r,
		})
	}
	return buckets
}

// Total returns the number of records across all buckets.
func (bs Buckets) Total() int {
	n := 0
	for _, b := range bs {
		n += b.Len()
	}
	return n
}

// Sizes returns the entry count per recognized type, including empty types.
func (bs Buckets) Sizes() map[string]int {
	sizes := make(map[string]int, len(domain.RecognizedTypes))
	for _, t := range domain.RecognizedTypes {
		sizes[t] = bs[t].Len()
	}
	return sizes
}

// Select returns the union of the named buckets' entries in catalog order.
// With no types it selects every bucket. Unknown or repeated types are ignored.
func (bs Buckets) Select(types ...string) []Entry {
	if len(types) == 0 {
		types = domain.RecognizedTypes
	}

	seen := make(map[string]bool, len(types))
	var out []Entry
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, bs[t].Entries()...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}
