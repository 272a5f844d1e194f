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

// Package property defines the per-slot property record: the bit-packed
// kind/attribute byte, the name handle it carries, and the payload union
// (data value, accessor getter/setter pair, internal blob, or computed
// virtual value).
package property

import (
	"github.com/pkg/errors"

	"github.com/embedjs/ecmacore/internal/cptr"
	"github.com/embedjs/ecmacore/internal/strtab"
)

// Kind is the property's storage discriminant.
type Kind uint8

const (
	KindNamedData Kind = iota
	KindNamedAccessor
	KindInternal
	KindVirtual
	KindSpecial
	KindDeleted
)

func (k Kind) String() string {
	switch k {
	case KindNamedData:
		return "named-data"
	case KindNamedAccessor:
		return "named-accessor"
	case KindInternal:
		return "internal"
	case KindVirtual:
		return "virtual"
	case KindSpecial:
		return "special"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Attr holds the configurable/enumerable/writable/lcached bits that ride
// alongside Kind in the record's packed type_flags byte.
type Attr uint8

const (
	AttrConfigurable Attr = 1 << iota
	AttrEnumerable
	AttrWritable
	AttrLCached
)

// ErrVirtualReadOnly is returned by SetValue on a virtual property.
var ErrVirtualReadOnly = errors.New("property: virtual property is not assignable")

// ErrNotAccessor is returned when getter/setter access is attempted on a
// non-accessor record.
var ErrNotAccessor = errors.New("property: record is not a named accessor")

// ErrNotData is returned when a data-only operation targets a non-data
// record.
var ErrNotData = errors.New("property: record is not named data")

// Record is one slot of a property list. Layout favors an explicit,
// discriminated payload over a raw byte union (spec.md §9's guidance about
// the list header's dual-use cache[0] applies just as well here: a tagged
// Go value is clearer than a reimplementation of a C union).
type Record struct {
	kind  Kind
	attrs Attr

	NameType strtab.NameType
	NameCP   uint32

	// LCacheID is opaque to this package. No code in this module writes or
	// reads it: the lookup cache finds a record's entry by (object, name)
	// and keeps AttrLCached in step through SetLCached.
	LCacheID uint16

	value        any       // KindNamedData / KindInternal payload
	accessorPair cptr.Ptr  // valid iff kind == KindNamedAccessor; indirects through an AccessorStore
	virtualFn    func() any
}

// NewData builds a NAMED_DATA record with the given initial value and
// attributes.
func NewData(nameType strtab.NameType, nameCP uint32, value any, attrs Attr) *Record {
	return &Record{
		kind:     KindNamedData,
		attrs:    attrs,
		NameType: nameType,
		NameCP:   nameCP,
		value:    value,
	}
}

// NewAccessor builds a NAMED_ACCESSOR record. pair must already be live in
// an AccessorStore (see AccessorStore.Put).
func NewAccessor(nameType strtab.NameType, nameCP uint32, pair cptr.Ptr, attrs Attr) *Record {
	return &Record{
		kind:         KindNamedAccessor,
		attrs:        attrs,
		NameType:     nameType,
		NameCP:       nameCP,
		accessorPair: pair,
	}
}

// NewInternal builds an INTERNAL record carrying an engine-private payload
// under a reserved "magic" name type.
func NewInternal(nameCP uint32, payload any) *Record {
	return &Record{
		kind:     KindInternal,
		NameType: strtab.NameDirectMagic,
		NameCP:   nameCP,
		value:    payload,
	}
}

// NewVirtual builds a VIRTUAL record: a read-only view whose value is
// computed on each read.
func NewVirtual(nameType strtab.NameType, nameCP uint32, compute func() any, attrs Attr) *Record {
	return &Record{
		kind:      KindVirtual,
		attrs:     attrs &^ AttrWritable, // virtual properties are never writable
		NameType:  nameType,
		NameCP:    nameCP,
		virtualFn: compute,
	}
}

// GetType returns the property's kind.
func (r *Record) GetType() Kind { return r.kind }

// GetNameType mirrors the owning string handle's direct/indirect tag.
func (r *Record) GetNameType() strtab.NameType { return r.NameType }

// MarkDeleted transitions the record to the tombstone state per spec.md
// §3's lifecycle: type_flags = DELETED, name_cp = MAGIC_DELETED. The slot
// keeps its position in the list's slab.
func (r *Record) MarkDeleted(magicDeleted uint32) {
	r.kind = KindDeleted
	r.NameCP = magicDeleted
	r.attrs = 0
	r.value = nil
	r.accessorPair = 0
	r.virtualFn = nil
}

func (r *Record) IsDeleted() bool { return r.kind == KindDeleted }

// IsWritable reports the writable bit. Only NAMED_DATA records honor it.
func (r *Record) IsWritable() bool { return r.kind == KindNamedData && r.attrs&AttrWritable != 0 }

// SetWritable sets the writable bit; per spec.md §4.1 it applies only to
// NAMED_DATA and is otherwise a no-op.
func (r *Record) SetWritable(v bool) {
	if r.kind != KindNamedData {
		return
	}
	r.setAttr(AttrWritable, v)
}

// IsEnumerable reports the enumerable bit. Applies to NAMED_DATA and
// NAMED_ACCESSOR.
func (r *Record) IsEnumerable() bool { return r.attrs&AttrEnumerable != 0 }

func (r *Record) SetEnumerable(v bool) {
	if r.kind != KindNamedData && r.kind != KindNamedAccessor {
		return
	}
	r.setAttr(AttrEnumerable, v)
}

// IsConfigurable reports the configurable bit. Applies to NAMED_DATA and
// NAMED_ACCESSOR.
func (r *Record) IsConfigurable() bool { return r.attrs&AttrConfigurable != 0 }

func (r *Record) SetConfigurable(v bool) {
	if r.kind != KindNamedData && r.kind != KindNamedAccessor {
		return
	}
	r.setAttr(AttrConfigurable, v)
}

// IsLCached reports whether the lookup cache currently holds an entry for
// this record.
func (r *Record) IsLCached() bool { return r.attrs&AttrLCached != 0 }

// SetLCached is called by the lookup cache package, and by ecma/context
// when it clears an evicted record, to keep the LCACHED bit and cache
// membership in lockstep (spec.md §8 "cache coherence").
func (r *Record) SetLCached(v bool) { r.setAttr(AttrLCached, v) }

func (r *Record) setAttr(a Attr, v bool) {
	if v {
		r.attrs |= a
	} else {
		r.attrs &^= a
	}
}

// Value returns the stored value for NAMED_DATA and INTERNAL records, or
// the freshly computed value for VIRTUAL records.
func (r *Record) Value() any {
	switch r.kind {
	case KindVirtual:
		if r.virtualFn == nil {
			return nil
		}
		return r.virtualFn()
	default:
		return r.value
	}
}

// SetValue assigns a NAMED_DATA or INTERNAL record's value. Virtual
// properties reject assignment.
func (r *Record) SetValue(v any) error {
	switch r.kind {
	case KindVirtual:
		return ErrVirtualReadOnly
	case KindNamedData, KindInternal:
		r.value = v
		return nil
	default:
		return ErrNotData
	}
}

// AccessorPointer returns the compact pointer to this record's
// {getter,setter} pair, valid only when GetType() == KindNamedAccessor.
func (r *Record) AccessorPointer() (cptr.Ptr, error) {
	if r.kind != KindNamedAccessor {
		return 0, ErrNotAccessor
	}
	return r.accessorPair, nil
}

// SetAccessorPointer replaces the record's indirect accessor pair pointer.
// Callers are expected to have freed the previous pair via an
// AccessorStore first.
func (r *Record) SetAccessorPointer(p cptr.Ptr) error {
	if r.kind != KindNamedAccessor {
		return ErrNotAccessor
	}
	r.accessorPair = p
	return nil
}

// AttrBits returns the record's configurable/enumerable/writable bits,
// always excluding LCACHED (clones and hashmap rebuilds never want to
// carry a stale cache-membership bit along).
func (r *Record) AttrBits() Attr { return r.attrs &^ AttrLCached }

// ObjectRef marks a property value as a reference to a heap object rather
// than a scalar payload, so clone_declarative_environment (spec.md §4.2)
// can tell "share the reference" apart from "copy the scalar" when its
// copyValues flag is set.
type ObjectRef interface{ IsObjectRef() bool }
