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

// Package hashmap implements the property list's open-addressed
// accelerator (spec.md §4.3). It is the canonical design the spec adopts
// over the abandoned chained-entry variants found in the original source:
// a fixed cell array, power-of-two sized, probed with a step drawn from a
// small prime table so the full table is traversed before any cell
// repeats.
package hashmap

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/embedjs/ecmacore/ecma/property"
	"github.com/embedjs/ecmacore/ecma/slotview"
	"github.com/embedjs/ecmacore/internal/strtab"
)

// primes is the fixed step table; every entry is odd and therefore
// coprime with any power-of-two bucket count, guaranteeing full coverage.
var primes = [8]uint32{3, 5, 7, 11, 13, 17, 19, 23}

const nSteps = uint32(len(primes))

const (
	cellClean uint32 = 0          // never used
	cellDirty uint32 = 0xFFFFFFFF // tombstone
)

// Hasher lets the hashmap package stay independent of how a record's name
// is hashed/compared; ecma/context supplies the real implementation backed
// by internal/strtab, and proplist passes it through.
type Hasher interface {
	Hash(nameType strtab.NameType, nameCP uint32) uint32
	Equal(nameType strtab.NameType, nameCP uint32, other strtab.NameType, otherCP uint32) bool
}

// DeleteStatus resolves spec.md §9's open question about
// property_hashmap_delete's ambiguous return value: NotFound and Deleted
// are now distinguishable, but Deleted and Recreate both mean "it's gone
// now" — callers must not infer prior membership from which of the two
// they got.
type DeleteStatus uint8

const (
	DeleteNotFound DeleteStatus = iota
	DeleteDeleted
	DeleteRecreate
)

// Map is the open-addressed bucket table attached to a property list once
// it reaches MinimumHashmapSize.
type Map struct {
	cells       []uint32
	bucketCount uint32
	liveCount   uint32
	nullCount   uint32
	unusedCount uint32
	used        *bitset.BitSet // debug occupancy shadow, mirrors non-clean/dirty cells
}

// BucketCount, LiveCount, NullCount, and UnusedCount expose the counters
// spec.md's load-factor policy and §8's boundary scenarios are stated in
// terms of.
func (m *Map) BucketCount() uint32 { return m.bucketCount }
func (m *Map) LiveCount() uint32   { return m.liveCount }
func (m *Map) NullCount() uint32   { return m.nullCount }
func (m *Map) UnusedCount() uint32 { return m.unusedCount }

// Used returns the debug occupancy bitmap: bit i set means cell i is
// neither CLEAN nor DIRTY. Only meant for the cross-cutting invariant
// sweep (ecma/context.DebugSweep); ordinary Find/Insert/Delete never read
// it.
func (m *Map) Used() *bitset.BitSet { return m.used }

// bucketCountFor returns the smallest power of two bucket count that
// keeps at least one third of cells free for `live` live entries.
func bucketCountFor(live uint32) uint32 {
	needed := live + live/2 + 1 // live <= 2/3 * bucketCount  <=>  bucketCount >= 1.5*live
	bc := uint32(8)
	for bc < needed {
		bc <<= 1
	}
	return bc
}

// New walks src and builds a fresh map over every live named slot. This is
// spec.md §4.3's "create" when called standalone, and is also how a
// rebuild (triggered by Insert or a DeleteRecreate status) is performed:
// the caller always re-derives the entry set from the list rather than
// the hashmap trying to remember it independently.
func New(src slotview.Source, hasher Hasher) *Map {
	var live uint32
	for i := 0; i < src.Len(); i++ {
		if isNamedLive(src.At(i)) {
			live++
		}
	}
	bc := bucketCountFor(live)
	m := &Map{
		cells:       make([]uint32, bc),
		bucketCount: bc,
		nullCount:   bc,
		used:        bitset.New(uint(bc)),
	}
	for i := 0; i < src.Len(); i++ {
		rec := src.At(i)
		if !isNamedLive(rec) {
			continue
		}
		m.insertRaw(hasher.Hash(rec.NameType, rec.NameCP), uint32(i+1))
	}
	return m
}

// isNamedLive reports whether rec currently belongs in the hashmap: live
// (not DELETED) and named (not VIRTUAL/SPECIAL, which carry no findable
// name_cp identity of their own in this design).
func isNamedLive(rec *property.Record) bool {
	if rec == nil || rec.IsDeleted() {
		return false
	}
	switch rec.GetType() {
	case property.KindNamedData, property.KindNamedAccessor, property.KindInternal:
		return true
	default:
		return false
	}
}

// insertRaw writes slotIndex1 (1-based) into the first non-live cell on
// hash's probe sequence. Callers must already know the name is absent.
func (m *Map) insertRaw(hash uint32, slotIndex1 uint32) {
	mask := m.bucketCount - 1
	step := primes[hash&(nSteps-1)]
	cur := hash & mask
	for i := uint32(0); i < m.bucketCount; i++ {
		c := m.cells[cur]
		if c == cellClean {
			m.nullCount--
			m.liveCount++
			m.cells[cur] = slotIndex1
			m.used.Set(uint(cur))
			return
		}
		if c == cellDirty {
			m.unusedCount--
			m.liveCount++
			m.cells[cur] = slotIndex1
			m.used.Set(uint(cur))
			return
		}
		cur = (cur + step) & mask
	}
	// Unreachable under the load-factor policy: New/Insert always keep at
	// least one free cell before probing.
}

// probeFind walks the probe sequence for (nameType, nameCP), using src and
// hasher to resolve each candidate cell's slot back to a record for the
// equality check. It returns the 0-based slot index and the 0-based cell
// index that matched, or ok=false with cellIdx pointing at the first CLEAN
// cell encountered (0 if the whole table was probed); Delete and Find
// ignore cellIdx on a miss.
func (m *Map) probeFind(src slotview.Source, hasher Hasher, nameType strtab.NameType, nameCP uint32, hash uint32) (slot int, cellIdx uint32, ok bool) {
	mask := m.bucketCount - 1
	step := primes[hash&(nSteps-1)]
	cur := hash & mask
	for i := uint32(0); i < m.bucketCount; i++ {
		c := m.cells[cur]
		if c == cellClean {
			return 0, cur, false
		}
		if c != cellDirty {
			idx := int(c) - 1
			rec := src.At(idx)
			if rec != nil && hasher.Equal(rec.NameType, rec.NameCP, nameType, nameCP) {
				return idx, cur, true
			}
		}
		cur = (cur + step) & mask
	}
	return 0, 0, false
}

// Find resolves (nameType, nameCP) to a 0-based slot index.
func (m *Map) Find(src slotview.Source, hasher Hasher, nameType strtab.NameType, nameCP uint32) (slot int, ok bool) {
	hash := hasher.Hash(nameType, nameCP)
	slot, _, ok = m.probeFind(src, hasher, nameType, nameCP, hash)
	return slot, ok
}

// InsertResult tells the caller whether the map it's holding is still
// valid or was replaced by a rebuilt one.
type InsertResult struct {
	Map     *Map
	Rebuilt bool
}

// Insert adds (nameType, nameCP) -> slotIndex. If the free-cell ratio has
// dropped below the rebuild threshold (null_count < bucketCount/8), it
// rebuilds from src instead (src must already include the new slot, since
// proplist.Create appends before calling Insert).
func (m *Map) Insert(src slotview.Source, hasher Hasher, nameType strtab.NameType, nameCP uint32, slotIndex int) InsertResult {
	if m.nullCount < m.bucketCount/8 {
		return InsertResult{Map: New(src, hasher), Rebuilt: true}
	}
	hash := hasher.Hash(nameType, nameCP)
	m.insertRaw(hash, uint32(slotIndex+1))
	return InsertResult{Map: m}
}

// Delete removes (nameType, nameCP) from the map. See DeleteStatus for how
// the spec's ambiguous original return value is resolved here.
func (m *Map) Delete(src slotview.Source, hasher Hasher, nameType strtab.NameType, nameCP uint32) DeleteStatus {
	hash := hasher.Hash(nameType, nameCP)
	_, cellIdx, ok := m.probeFind(src, hasher, nameType, nameCP, hash)
	if !ok {
		return DeleteNotFound
	}
	m.cells[cellIdx] = cellDirty
	m.used.Clear(uint(cellIdx))
	m.unusedCount++
	m.liveCount--
	if m.unusedCount > 3*m.bucketCount/4 {
		return DeleteRecreate
	}
	return DeleteDeleted
}
