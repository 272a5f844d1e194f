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

// Package strtab models the string-handle collaborator described in
// spec.md §3: an opaque reference to an interned string that is either
// "direct" (small enough to pack into a tag+value pair, no heap record
// needed) or "indirect" (a compact pointer to a heap string). The engine
// core consumes Handle, Hash, and the direct-string predicates; Table backs
// indirect handles, and ecma/context holds one as Context.Strings.
package strtab

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/embedjs/ecmacore/internal/cptr"
)

// NameType mirrors the high bits of a property record's type_flags.
type NameType uint8

const (
	// NameIndirect means Handle.value is a compact pointer to a heap
	// string record.
	NameIndirect NameType = iota
	// NameDirectString is a short string packed directly into the handle.
	NameDirectString
	// NameDirectUInt is a small non-negative integer name (array index
	// style), packed directly.
	NameDirectUInt
	// NameDirectMagic tags engine-internal/"magic" property names.
	NameDirectMagic
)

// maxDirectLen is the longest string that fits inline as NameDirectString:
// 3 bytes packed into the 24 low bits of a uint32 payload, with the string
// length in the high byte so strings of different lengths never share a
// payload.
const maxDirectLen = 3

// Handle is an opaque string reference: either direct or a compact
// pointer to an interned heap string.
type Handle struct {
	tag   NameType
	value uint32
}

// Indirect builds a handle referencing a heap string via compact pointer.
func Indirect(p cptr.Ptr) Handle { return Handle{tag: NameIndirect, value: uint32(p)} }

// FromRaw reconstructs a handle from a property record's (NameType,
// NameCP) pair, e.g. to recover the name a lookup-cache entry or deleted
// record used to carry.
func FromRaw(nameType NameType, value uint32) Handle { return Handle{tag: nameType, value: value} }

// Magic builds a direct handle for an engine-internal reserved name.
func Magic(id uint32) Handle { return Handle{tag: NameDirectMagic, value: id} }

// IsDirect reports whether name fits inline, needing no string-table
// lookup to resolve.
func (h Handle) IsDirect() bool { return h.tag != NameIndirect }

// DirectType returns the handle's name-type tag.
func (h Handle) DirectType() NameType { return h.tag }

// DirectValue returns the raw direct payload (only meaningful when
// IsDirect()).
func (h Handle) DirectValue() uint32 { return h.value }

// Pointer returns the compact pointer for an indirect handle.
func (h Handle) Pointer() cptr.Ptr { return cptr.Ptr(h.value) }

// RawValue returns the handle's raw payload, the same value a property
// record's NameCP field stores for this name.
func (h Handle) RawValue() uint32 { return h.value }

// CacheKey returns the raw 32-bit value the lookup cache folds into its
// packed (object, name) id. Direct handles fold the name-type tag into
// the high bits so e.g. a direct uint name and an indirect pointer that
// happen to share a numeric value don't collide as often; the lookup
// cache's separate name-type guard (spec.md §4.4) handles the rare case
// where they still do.
func (h Handle) CacheKey() uint32 { return h.value ^ (uint32(h.tag) << 28) }

func (h Handle) String() string {
	switch h.tag {
	case NameDirectUInt:
		return strconv.FormatUint(uint64(h.value), 10)
	case NameDirectString:
		return decodeDirectString(h.value)
	default:
		return ""
	}
}

// Hash computes the process-wide string hash used by the property
// hashmap's probe sequence. Truncated from a 64-bit digest, matching the
// teacher's own reach for xxhash/v2 wherever it needs a fast
// non-cryptographic hash.
func Hash(s string) uint32 { return uint32(xxhash.Sum64String(s)) }

func tryDirectUint(s string) (Handle, bool) {
	if s == "" || len(s) > 9 {
		return Handle{}, false
	}
	if s[0] == '0' && len(s) > 1 {
		return Handle{}, false // no leading zeros, matches array-index grammar
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return Handle{}, false
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return Handle{}, false
	}
	return Handle{tag: NameDirectUInt, value: uint32(n)}, true
}

func tryDirectString(s string) (Handle, bool) {
	if len(s) > maxDirectLen {
		return Handle{}, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return Handle{}, false
		}
	}
	var v uint32
	for i := 0; i < len(s); i++ {
		v |= uint32(s[i]) << uint(8*i)
	}
	v |= uint32(len(s)) << 24
	return Handle{tag: NameDirectString, value: v}, true
}

func decodeDirectString(v uint32) string {
	n := int(v >> 24)
	buf := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		buf = append(buf, byte(v>>uint(8*i)))
	}
	return string(buf)
}

// Table interns heap (indirect) strings behind compact pointers. It is the
// minimal concrete backing the spec leaves "opaque"; ecma/context calls its
// Lookup, EqualNondirect and Release to hash, compare and free indirect
// names.
type Table struct {
	alloc   cptr.BlockAllocator
	strings map[cptr.Ptr]*entry
	byValue map[string]cptr.Ptr
}

type entry struct {
	s        string
	hash     uint32
	refcount uint32
}

// NewTable creates a string table backed by alloc. Each indirect entry
// still mints a compact pointer from alloc, so the core's notion of
// "a small integer handle bound to an allocator base" holds even though
// the string bytes themselves live in the table's Go map rather than the
// mmap'd arena.
func NewTable(alloc cptr.BlockAllocator) *Table {
	return &Table{
		alloc:   alloc,
		strings: make(map[cptr.Ptr]*entry),
		byValue: make(map[string]cptr.Ptr),
	}
}

// Intern returns the handle for s, creating a direct handle when s fits
// inline and otherwise deduplicating against the heap string table.
func (t *Table) Intern(s string) (Handle, error) {
	if h, ok := tryDirectUint(s); ok {
		return h, nil
	}
	if h, ok := tryDirectString(s); ok {
		return h, nil
	}
	if p, ok := t.byValue[s]; ok {
		t.strings[p].refcount++
		return Indirect(p), nil
	}
	p, _, err := t.alloc.AllocBlock(8)
	if err != nil {
		return Handle{}, err
	}
	t.strings[p] = &entry{s: s, hash: Hash(s), refcount: 1}
	t.byValue[s] = p
	return Indirect(p), nil
}

// Lookup resolves an indirect handle back to its string content.
func (t *Table) Lookup(p cptr.Ptr) (string, bool) {
	e, ok := t.strings[p]
	if !ok {
		return "", false
	}
	return e.s, true
}

// Release decrements an interned string's refcount, freeing it and its
// compact pointer once it reaches zero.
func (t *Table) Release(p cptr.Ptr) {
	e, ok := t.strings[p]
	if !ok {
		return
	}
	e.refcount--
	if e.refcount == 0 {
		delete(t.strings, p)
		delete(t.byValue, e.s)
		t.alloc.Free(p, 8)
	}
}

// EqualNondirect performs the "general path" deep comparison between two
// indirect handles, falling back to content comparison rather than
// assuming pointer identity (Intern already dedups, but the core's own
// lookup paths must not rely on that as an invariant).
func (t *Table) EqualNondirect(a, b Handle) bool {
	if a.tag != NameIndirect || b.tag != NameIndirect {
		return false
	}
	if a.value == b.value {
		return true
	}
	sa, ok := t.Lookup(a.Pointer())
	if !ok {
		return false
	}
	sb, ok := t.Lookup(b.Pointer())
	if !ok {
		return false
	}
	return sa == sb
}
