// Copyright 2026 The Ecmacore Authors
// This file is part of ecmacore.
//
// ecmacore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ecmacore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ecmacore. If not, see <http://www.gnu.org/licenses/>.

// Package lcache implements the process-wide lookup cache (spec.md §4.4):
// a direct-mapped ROWS×ROW_LEN table mapping (object, name) to a property
// slot, with LRU-by-insertion-recency within a row. It is a best-effort
// accelerator; every method here either hits or reports a clean miss, and
// correctness of the rest of the core never depends on its state.
package lcache

import (
	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/embedjs/ecmacore/ecma/property"
	"github.com/embedjs/ecmacore/ecma/slotview"
	"github.com/embedjs/ecmacore/internal/cptr"
	"github.com/embedjs/ecmacore/internal/strtab"
)

// Entry is one cell of a cache row. A zero Entry (ID == 0) is empty.
type Entry struct {
	ID       uint64
	NameType strtab.NameType
	Slot     int
}

func (e Entry) empty() bool { return e.ID == 0 }

// ObjectID recovers the owning object's compact pointer from a packed id.
func (e Entry) ObjectID() cptr.Ptr { return cptr.Ptr(e.ID >> 32) }

// Cache is the shared, process-wide lookup cache living on the engine
// Context (ecma/context), not on any single object.
type Cache struct {
	rows   int
	rowLen int
	table  [][]Entry

	// evictionTrail is a bounded diagnostic log of recent row evictions,
	// surfaced by cmd/propdump; it plays no role in correctness.
	evictionTrail *lru.LRU[uint64, Entry]
	evictionSeq   uint64
}

// New builds a cache with the given row/row-length geometry
// (spec.md §6's lookup_cache_rows / lookup_cache_row_len).
func New(rows, rowLen, diagnosticTrailSize int) *Cache {
	if rows < 1 {
		rows = 1
	}
	if rowLen < 1 {
		rowLen = 1
	}
	table := make([][]Entry, rows)
	for i := range table {
		table[i] = make([]Entry, rowLen)
	}
	trail, _ := lru.NewLRU[uint64, Entry](maxInt(diagnosticTrailSize, 1), nil)
	return &Cache{rows: rows, rowLen: rowLen, table: table, evictionTrail: trail}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func packID(objectID cptr.Ptr, nameKey uint32) uint64 {
	return (uint64(objectID) << 32) | uint64(nameKey)
}

// rowIndex derives a row from (name XOR object), dropping the low bits
// that depend on allocation granularity (spec.md §3).
func (c *Cache) rowIndex(objectID cptr.Ptr, nameKey uint32, granularityShift uint) int {
	h := (uint32(objectID) ^ nameKey) >> granularityShift
	return int(h % uint32(c.rows))
}

// Lookup resolves (objectID, name) against the cache, verifying the
// resolved record's name type before returning it to guard against
// direct/indirect confusion (spec.md §4.4).
func (c *Cache) Lookup(objectID cptr.Ptr, name strtab.Handle, granularityShift uint, src slotview.Source) (*property.Record, int, bool) {
	key := name.CacheKey()
	id := packID(objectID, key)
	row := c.table[c.rowIndex(objectID, key, granularityShift)]
	for _, e := range row {
		if e.empty() || e.ID != id || e.NameType != name.DirectType() {
			continue
		}
		rec := src.At(e.Slot)
		if rec == nil || rec.IsDeleted() || rec.NameType != name.DirectType() {
			continue
		}
		return rec, e.Slot, true
	}
	return nil, 0, false
}

// Insert installs a new front entry for (objectID, name, slot), setting
// rec's LCACHED bit. If the row was full, the LRU entry is evicted and
// returned so the caller (ecma/context, which owns the object registry)
// can clear LCACHED on the evicted record and restore its slot into its
// list's MRU cache.
func (c *Cache) Insert(objectID cptr.Ptr, name strtab.Handle, granularityShift uint, slot int, rec *property.Record) (evicted Entry, hadEviction bool) {
	key := name.CacheKey()
	id := packID(objectID, key)
	rowIdx := c.rowIndex(objectID, key, granularityShift)
	row := c.table[rowIdx]

	freeIdx := -1
	for i, e := range row {
		if e.empty() {
			freeIdx = i
			break
		}
	}
	newEntry := Entry{ID: id, NameType: name.DirectType(), Slot: slot}
	if freeIdx == -1 {
		last := row[len(row)-1]
		if !last.empty() {
			evicted = last
			hadEviction = true
			c.evictionSeq++
			c.evictionTrail.Add(c.evictionSeq, last)
		}
		copy(row[1:], row[:len(row)-1])
		row[0] = newEntry
	} else {
		copy(row[1:freeIdx+1], row[0:freeIdx])
		row[0] = newEntry
	}
	rec.SetLCached(true)
	return evicted, hadEviction
}

// Invalidate clears the cache entry for (objectID, name) and rec's
// LCACHED bit atomically, matching spec.md §8's cache-coherence property.
// rec must be the record the entry currently points at.
func (c *Cache) Invalidate(objectID cptr.Ptr, name strtab.Handle, granularityShift uint, rec *property.Record) {
	key := name.CacheKey()
	id := packID(objectID, key)
	row := c.table[c.rowIndex(objectID, key, granularityShift)]
	for i, e := range row {
		if e.ID == id && e.NameType == name.DirectType() {
			row[i] = Entry{}
			break
		}
	}
	rec.SetLCached(false)
}

// EvictionTrail returns the most recent diagnostic eviction records,
// newest first, for cmd/propdump.
func (c *Cache) EvictionTrail() []Entry {
	keys := c.evictionTrail.Keys()
	out := make([]Entry, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if v, ok := c.evictionTrail.Peek(keys[i]); ok {
			out = append(out, v)
		}
	}
	return out
}
