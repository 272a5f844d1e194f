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

// Package proplist implements the property list: the authoritative,
// per-object store of property records described in spec.md §4.2, plus
// the small per-list MRU cache and the optional hashmap accelerator it
// owns once the list crosses MinimumHashmapSize.
//
// One design note up front: spec.md §9 flags the list header's
// cache[0]==0 "hashmap present" overload as a source-level artifact of a
// tight C bit budget and recommends an explicit discriminated variant
// instead. header below is exactly that — a bool plus a *hashmap.Map
// field, no sentinel value doing double duty.
//
// A second departure from the literal C design: spec.md §4.2 describes
// create() rewriting lookup-cache entries whose record pointer points
// into a slab that just got reallocated. This core's List stores
// []*property.Record (each record its own Go allocation) rather than an
// inline byte slab, and its lookup cache (ecma/lcache) never stores a raw
// record pointer — only an object id and a slot index, re-resolved
// through slotview.Source on every hit. Growing the slice never moves an
// existing *property.Record, so there is no slab-pointer rewrite to do;
// the invariant the spec is protecting (a cache entry must never outlive
// the record it named) still holds, it is simply enforced structurally.
package proplist

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"

	"github.com/embedjs/ecmacore/ecma/hashmap"
	"github.com/embedjs/ecmacore/ecma/property"
	"github.com/embedjs/ecmacore/internal/cptr"
	"github.com/embedjs/ecmacore/internal/strtab"
)

// ErrPropertyExists is returned by the Create* constructors when a live
// record already occupies (name_type, name_cp) on this list. spec.md
// §4.2's create_named_data/create_named_accessor both "check absence"
// before calling create; §8's Uniqueness property requires
// (name_cp, name_type) to stay unique across every live record on one
// object, so every constructor here checks absence the same way.
var ErrPropertyExists = errors.New("proplist: property already exists")

// Config is the subset of the process-wide configuration (spec.md §6)
// that property-list operations need.
type Config struct {
	HashmapEnabled     bool
	MinimumHashmapSize int
	Width              cptr.Width
	HashmapAllocOn     func() bool
}

// mruArity returns K: 2 on Width32 builds, 3 otherwise (spec.md §3).
func mruArity(w cptr.Width) int {
	if w == cptr.Width32 {
		return 2
	}
	return 3
}

type header struct {
	hashmapAttached bool
	hashmap         *hashmap.Map
	mru             []int // front-most first; -1 marks an empty hint
}

// List is one object's property list.
type List struct {
	ObjectID     cptr.Ptr
	MagicDeleted uint32

	slots      []*property.Record
	header     header
	liveNamed  int
	enumerable *roaring.Bitmap
}

// New creates an empty list. The hashmap/MRU header starts in "no
// hashmap, empty MRU hints" state.
func New(objectID cptr.Ptr, width cptr.Width, magicDeleted uint32) *List {
	mru := make([]int, mruArity(width))
	for i := range mru {
		mru[i] = -1
	}
	return &List{
		ObjectID:     objectID,
		MagicDeleted: magicDeleted,
		header:       header{mru: mru},
		enumerable:   roaring.New(),
	}
}

// Len and At implement slotview.Source.
func (l *List) Len() int { return len(l.slots) }
func (l *List) At(index int) *property.Record {
	if index < 0 || index >= len(l.slots) {
		return nil
	}
	return l.slots[index]
}

// HasHashmap reports whether the list currently has an attached
// accelerator.
func (l *List) HasHashmap() bool { return l.header.hashmapAttached }

// Hashmap returns the attached accelerator, or nil.
func (l *List) Hashmap() *hashmap.Map { return l.header.hashmap }

// LiveNamedCount is the number of non-deleted NAMED_DATA/NAMED_ACCESSOR/
// INTERNAL slots, the quantity spec.md §3/§4.3 call "count" for hashmap
// sizing purposes.
func (l *List) LiveNamedCount() int { return l.liveNamed }

// EnumerableOwnKeys returns slot indices for live, enumerable named
// properties in ascending order. Because slots are append-only (deleted
// slots keep their position), ascending bitmap order reproduces insertion
// order for free — spec.md §8 scenario 1's required enumeration order.
func (l *List) EnumerableOwnKeys() []int {
	it := l.enumerable.Iterator()
	out := make([]int, 0, l.enumerable.GetCardinality())
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

func (l *List) rotateMRU(idx int) {
	k := len(l.header.mru)
	for i := k - 1; i > 0; i-- {
		l.header.mru[i] = l.header.mru[i-1]
	}
	l.header.mru[0] = idx
}

// RestoreMRU re-inserts idx into the MRU hints. Called by the lookup
// cache's eviction path (through ecma/context) to restore a slot's hint
// after its lookup-cache entry is evicted.
func (l *List) RestoreMRU(idx int) { l.rotateMRU(idx) }

func (l *List) probeMRU(nameType strtab.NameType, nameCP uint32) (int, bool) {
	for _, idx := range l.header.mru {
		if idx < 0 || idx >= len(l.slots) {
			continue
		}
		rec := l.slots[idx]
		if rec == nil || rec.IsDeleted() {
			continue
		}
		if rec.NameType == nameType && rec.NameCP == nameCP {
			return idx, true
		}
	}
	return 0, false
}

func (l *List) findLinear(hasher hashmap.Hasher, nameType strtab.NameType, nameCP uint32) (int, bool) {
	for i, rec := range l.slots {
		if rec == nil || rec.IsDeleted() {
			continue
		}
		if rec.NameType == nameType && rec.NameCP == nameCP {
			return i, true
		}
		if nameType == strtab.NameIndirect && rec.NameType == strtab.NameIndirect &&
			hasher.Equal(rec.NameType, rec.NameCP, nameType, nameCP) {
			return i, true
		}
	}
	return 0, false
}

// FindLocal resolves name against this list alone: hashmap if attached,
// else MRU hints then a full linear scan. It never touches the process
// lookup cache — that orchestration lives in ecma/context, which is also
// what owns the object registry needed to service a lookup-cache eviction.
func (l *List) FindLocal(hasher hashmap.Hasher, name strtab.Handle) (*property.Record, int, bool) {
	nameType := name.DirectType()
	nameCP := name.RawValue()

	if l.header.hashmapAttached {
		idx, ok := l.header.hashmap.Find(l, hasher, nameType, nameCP)
		if !ok {
			return nil, 0, false
		}
		l.rotateMRU(idx)
		return l.slots[idx], idx, true
	}

	if len(l.slots) > len(l.header.mru) {
		if idx, ok := l.probeMRU(nameType, nameCP); ok {
			l.rotateMRU(idx)
			return l.slots[idx], idx, true
		}
	}

	idx, ok := l.findLinear(hasher, nameType, nameCP)
	if !ok {
		return nil, 0, false
	}
	l.rotateMRU(idx)
	return l.slots[idx], idx, true
}

func (l *List) trackInsert(rec *property.Record, idx int) {
	switch rec.GetType() {
	case property.KindNamedData, property.KindNamedAccessor, property.KindInternal:
		l.liveNamed++
	}
	if (rec.GetType() == property.KindNamedData || rec.GetType() == property.KindNamedAccessor) && rec.IsEnumerable() {
		l.enumerable.Add(uint32(idx))
	}
}

// append adds rec as the next slot and returns its index, updating the
// hashmap (attaching a new one, inserting into an existing one, or doing
// neither) per spec.md §4.2's create() algorithm.
func (l *List) append(cfg Config, hasher hashmap.Hasher, rec *property.Record) (*property.Record, int) {
	l.slots = append(l.slots, rec)
	idx := len(l.slots) - 1
	l.trackInsert(rec, idx)

	if l.header.hashmapAttached {
		res := l.header.hashmap.Insert(l, hasher, rec.NameType, rec.NameCP, idx)
		l.header.hashmap = res.Map
		return rec, idx
	}
	allocOK := cfg.HashmapAllocOn == nil || cfg.HashmapAllocOn()
	if cfg.HashmapEnabled && allocOK && l.liveNamed >= cfg.MinimumHashmapSize {
		l.header.hashmap = hashmap.New(l, hasher)
		l.header.hashmapAttached = true
	}
	return rec, idx
}

// checkAbsent reports ErrPropertyExists if a live record already carries
// (nameType, nameCP), the absence check every Create* constructor below
// must run before appending a new slot.
func (l *List) checkAbsent(hasher hashmap.Hasher, nameType strtab.NameType, nameCP uint32) error {
	if _, _, ok := l.FindLocal(hasher, strtab.FromRaw(nameType, nameCP)); ok {
		return ErrPropertyExists
	}
	return nil
}

// CreateData appends a NAMED_DATA slot, failing with ErrPropertyExists if
// the name is already live on this list.
func (l *List) CreateData(cfg Config, hasher hashmap.Hasher, nameType strtab.NameType, nameCP uint32, value any, attrs property.Attr) (*property.Record, int, error) {
	if err := l.checkAbsent(hasher, nameType, nameCP); err != nil {
		return nil, 0, err
	}
	rec := property.NewData(nameType, nameCP, value, attrs)
	r, idx := l.append(cfg, hasher, rec)
	return r, idx, nil
}

// CreateAccessor appends a NAMED_ACCESSOR slot. pair must already be live
// in an AccessorStore. Fails with ErrPropertyExists if the name is
// already live on this list.
func (l *List) CreateAccessor(cfg Config, hasher hashmap.Hasher, nameType strtab.NameType, nameCP uint32, pair cptr.Ptr, attrs property.Attr) (*property.Record, int, error) {
	if err := l.checkAbsent(hasher, nameType, nameCP); err != nil {
		return nil, 0, err
	}
	rec := property.NewAccessor(nameType, nameCP, pair, attrs)
	r, idx := l.append(cfg, hasher, rec)
	return r, idx, nil
}

// CreateInternal appends an INTERNAL slot under a magic name, failing
// with ErrPropertyExists if that magic name is already live.
func (l *List) CreateInternal(cfg Config, hasher hashmap.Hasher, nameCP uint32, payload any) (*property.Record, int, error) {
	if err := l.checkAbsent(hasher, strtab.NameDirectMagic, nameCP); err != nil {
		return nil, 0, err
	}
	rec := property.NewInternal(nameCP, payload)
	r, idx := l.append(cfg, hasher, rec)
	return r, idx, nil
}

// CreateVirtual appends a VIRTUAL slot, failing with ErrPropertyExists if
// the name is already live on this list.
func (l *List) CreateVirtual(cfg Config, hasher hashmap.Hasher, nameType strtab.NameType, nameCP uint32, compute func() any, attrs property.Attr) (*property.Record, int, error) {
	if err := l.checkAbsent(hasher, nameType, nameCP); err != nil {
		return nil, 0, err
	}
	rec := property.NewVirtual(nameType, nameCP, compute, attrs)
	r, idx := l.append(cfg, hasher, rec)
	return r, idx, nil
}

// Delete marks the slot at idx DELETED, updates the enumerable index and
// liveNamed counter, and notifies the hashmap if attached. Freeing the
// record's own payload (accessor pair, internal blob) is the caller's
// responsibility before Delete is invoked, since MarkDeleted clears the
// record's fields.
func (l *List) Delete(hasher hashmap.Hasher, idx int) hashmap.DeleteStatus {
	rec := l.slots[idx]
	if rec.IsEnumerable() {
		l.enumerable.Remove(uint32(idx))
	}
	switch rec.GetType() {
	case property.KindNamedData, property.KindNamedAccessor, property.KindInternal:
		l.liveNamed--
	}
	// The hashmap matches cells by the record's name, so it must be told
	// before MarkDeleted overwrites NameCP; the rebuild runs after, so the
	// tombstoned slot is left out of the new map.
	status := hashmap.DeleteNotFound
	if l.header.hashmapAttached {
		status = l.header.hashmap.Delete(l, hasher, rec.NameType, rec.NameCP)
	}
	rec.MarkDeleted(l.MagicDeleted)

	if status == hashmap.DeleteRecreate {
		l.header.hashmap = hashmap.New(l, hasher)
	}
	return status
}

// CloneDeclarativeEnvironment snapshots names and attributes into a new
// list. A NAMED_DATA value that implements property.ObjectRef is always
// shared by reference, regardless of copyValues, since an object
// reference identifies a heap object rather than holding a copyable
// scalar; a plain scalar value is copied when copyValues is true and
// left nil otherwise. NAMED_ACCESSOR slots always share their existing
// AccessorStore pair.
func (l *List) CloneDeclarativeEnvironment(cfg Config, hasher hashmap.Hasher, copyValues bool) *List {
	clone := New(l.ObjectID, cfg.Width, l.MagicDeleted)
	for _, rec := range l.slots {
		if rec == nil || rec.IsDeleted() {
			continue
		}
		attrs := rec.AttrBits()
		switch rec.GetType() {
		case property.KindNamedData:
			var v any
			orig := rec.Value()
			if ref, ok := orig.(property.ObjectRef); ok {
				v = ref
			} else if copyValues {
				v = orig
			}
			clone.append(cfg, hasher, property.NewData(rec.NameType, rec.NameCP, v, attrs))
		case property.KindNamedAccessor:
			pair, _ := rec.AccessorPointer()
			clone.append(cfg, hasher, property.NewAccessor(rec.NameType, rec.NameCP, pair, attrs))
		case property.KindInternal:
			var v any
			if copyValues {
				v = rec.Value()
			}
			clone.append(cfg, hasher, property.NewInternal(rec.NameCP, v))
		}
	}
	return clone
}
