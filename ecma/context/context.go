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

// Package context wires the property storage core's collaborators — the
// compact-pointer allocator, the string table, the per-object property
// lists, and the single process-wide lookup cache — into the one thing
// spec.md §6 actually describes a configuration surface for: one engine
// context, never shared across goroutines, which every other package in
// this module treats as the sole owner of cross-object orchestration
// (lookup-cache eviction restoring a list's MRU hints, the debug
// consistency sweep, fatal-error reporting).
package context

import (
	"fmt"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/embedjs/ecmacore/ecma/hashmap"
	"github.com/embedjs/ecmacore/ecma/lcache"
	"github.com/embedjs/ecmacore/ecma/property"
	"github.com/embedjs/ecmacore/ecma/proplist"
	"github.com/embedjs/ecmacore/internal/cptr"
	"github.com/embedjs/ecmacore/internal/strtab"
)

// Config gathers every process-wide switch spec.md §6 names.
type Config struct {
	Width              cptr.Width
	ArenaSize          uint32
	HashmapEnabled     bool
	MinimumHashmapSize int
	// HashmapAllocOn gates whether a hashmap may be allocated right now
	// (e.g. "not inside a GC pass"); nil means always allowed.
	HashmapAllocOn func() bool

	LookupCacheEnabled         bool
	LookupCacheRows            int
	LookupCacheRowLen          int
	LookupCacheDiagnosticTrail int

	// GranularityShift matches the allocator's own block granularity so
	// the lookup cache's row hash drops exactly the bits the allocator
	// can't vary (spec.md §3/§4.4).
	GranularityShift uint

	MagicDeleted uint32

	// Debug enables DebugSweep and verbose zap logging of accelerator
	// rebuilds; production embedding turns it off.
	Debug bool
}

// DefaultConfig matches the reference numbers spec.md §6 gives as
// starting points.
func DefaultConfig() Config {
	return Config{
		Width:                      cptr.Width32,
		ArenaSize:                  64 << 20,
		HashmapEnabled:             true,
		MinimumHashmapSize:         32,
		LookupCacheEnabled:         true,
		LookupCacheRows:            1024,
		LookupCacheRowLen:          4,
		LookupCacheDiagnosticTrail: 256,
		GranularityShift:           3,
		MagicDeleted:               0xFFFFFFFF,
	}
}

// FatalCode enumerates the unrecoverable conditions spec.md §7 says abort
// the context rather than propagate as an error value.
type FatalCode uint8

const (
	FatalArenaExhausted FatalCode = iota
	FatalHashmapInvariant
	FatalRefCountLimit
	FatalLookupCacheInvariant
)

func (c FatalCode) String() string {
	switch c {
	case FatalArenaExhausted:
		return "arena-exhausted"
	case FatalHashmapInvariant:
		return "hashmap-invariant-violated"
	case FatalRefCountLimit:
		return "ref-count-limit-exceeded"
	case FatalLookupCacheInvariant:
		return "lookup-cache-invariant-violated"
	default:
		return "unknown"
	}
}

type objectEntry struct {
	id   cptr.Ptr
	list *proplist.List
}

func lessObjectEntry(a, b objectEntry) bool { return a.id < b.id }

// Context is the engine's single property-storage core instance.
// Everything here is single-threaded cooperative, matching spec.md §5:
// callers must not share a Context across goroutines without their own
// external locking.
type Context struct {
	cfg Config

	Alloc     *cptr.Allocator
	Strings   *strtab.Table
	Accessors *property.AccessorStore
	Cache     *lcache.Cache

	objects *btree.BTreeG[objectEntry]
	log     *zap.SugaredLogger

	// ExitFunc is called by Fatal after logging. New installs a no-op; a
	// caller that wants a fatal condition to end the process must replace
	// it (cmd/propdump keeps the no-op).
	ExitFunc func(FatalCode)
}

// hasherAdapter is the Context's hashmap.Hasher, so that package need not
// import internal/strtab's Table directly.
type hasherAdapter struct{ strings *strtab.Table }

func (h hasherAdapter) Hash(nameType strtab.NameType, nameCP uint32) uint32 {
	name := strtab.FromRaw(nameType, nameCP)
	if name.IsDirect() {
		if nameType == strtab.NameDirectString {
			return strtab.Hash(name.String())
		}
		return nameCP
	}
	s, ok := h.strings.Lookup(name.Pointer())
	if !ok {
		return nameCP
	}
	return strtab.Hash(s)
}

func (h hasherAdapter) Equal(nameType strtab.NameType, nameCP uint32, otherType strtab.NameType, otherCP uint32) bool {
	if nameType != otherType {
		return false
	}
	if nameType != strtab.NameIndirect {
		return nameCP == otherCP
	}
	return h.strings.EqualNondirect(strtab.Indirect(cptr.Ptr(nameCP)), strtab.Indirect(cptr.Ptr(otherCP)))
}

// New builds a Context with a fresh arena, string table, accessor store,
// and lookup cache, all sized from cfg.
func New(cfg Config, log *zap.SugaredLogger) (*Context, error) {
	if log == nil {
		l, _ := zap.NewProduction()
		log = l.Sugar()
	}
	alloc, err := cptr.New(cfg.Width, cfg.ArenaSize, log)
	if err != nil {
		return nil, err
	}
	return &Context{
		cfg:       cfg,
		Alloc:     alloc,
		Strings:   strtab.NewTable(alloc),
		Accessors: property.NewAccessorStore(alloc),
		Cache:     lcache.New(cfg.LookupCacheRows, cfg.LookupCacheRowLen, cfg.LookupCacheDiagnosticTrail),
		objects:   btree.NewG(32, lessObjectEntry),
		log:       log,
		ExitFunc:  func(FatalCode) {},
	}, nil
}

func (c *Context) hasher() hashmap.Hasher { return hasherAdapter{strings: c.Strings} }

func (c *Context) listConfig() proplist.Config {
	return proplist.Config{
		HashmapEnabled:     c.cfg.HashmapEnabled,
		MinimumHashmapSize: c.cfg.MinimumHashmapSize,
		Width:              c.cfg.Width,
		HashmapAllocOn:     c.cfg.HashmapAllocOn,
	}
}

// Fatal logs code and msg, then invokes ExitFunc. It does not itself call
// os.Exit, so tests can observe the call; with the default no-op ExitFunc
// it returns and the caller goes on to its own error return.
func (c *Context) Fatal(code FatalCode, msg string, fields ...any) {
	c.log.Errorw(fmt.Sprintf("fatal: %s", msg), append([]any{"code", code.String()}, fields...)...)
	c.ExitFunc(code)
}

// objectHeaderSize is an arbitrary small placeholder block minted purely
// to hand out a unique compact pointer per object; this core doesn't
// model the rest of an object's heap layout, only its property list.
const objectHeaderSize = 8

// CreateObject mints a fresh object id and registers an empty property
// list for it.
func (c *Context) CreateObject() (cptr.Ptr, *proplist.List, error) {
	id, _, err := c.Alloc.AllocBlock(objectHeaderSize)
	if err != nil {
		c.Fatal(FatalArenaExhausted, "allocate object header", "err", err)
		return cptr.Null, nil, err
	}
	list := proplist.New(id, c.cfg.Width, c.cfg.MagicDeleted)
	c.objects.ReplaceOrInsert(objectEntry{id: id, list: list})
	return id, list, nil
}

// DestroyObject frees an object's header block and drops it from the
// registry. It does not walk or free the object's property list slots;
// callers are expected to have released per-slot payloads (accessor
// pairs, interned string handles) first.
func (c *Context) DestroyObject(id cptr.Ptr) {
	c.objects.Delete(objectEntry{id: id})
	c.Alloc.Free(id, objectHeaderSize)
}

// List returns the registered property list for id, or nil.
func (c *Context) List(id cptr.Ptr) *proplist.List {
	entry, ok := c.objects.Get(objectEntry{id: id})
	if !ok {
		return nil
	}
	return entry.list
}

// Find resolves name against id's property list, consulting and
// maintaining the process-wide lookup cache. This is the single entry
// point spec.md §4.4 describes as "the fast path": cache hit skips the
// list entirely; a miss falls through to FindLocal and, on success,
// installs a cache entry, possibly evicting and restoring another
// object's slot in the process.
func (c *Context) Find(id cptr.Ptr, name strtab.Handle) (*property.Record, int, bool) {
	list := c.List(id)
	if list == nil {
		return nil, 0, false
	}
	if c.cfg.LookupCacheEnabled {
		if rec, slot, ok := c.Cache.Lookup(id, name, c.cfg.GranularityShift, list); ok {
			return rec, slot, true
		}
	}
	rec, slot, ok := list.FindLocal(c.hasher(), name)
	if !ok {
		return nil, 0, false
	}
	if c.cfg.LookupCacheEnabled {
		evicted, hadEviction := c.Cache.Insert(id, name, c.cfg.GranularityShift, slot, rec)
		if hadEviction {
			c.restoreEvicted(evicted)
		}
	}
	return rec, slot, true
}

// restoreEvicted clears the evicted slot's LCACHED bit and restores its
// slot index into its own list's MRU hints, the cross-object step that
// only the context — owner of the object registry — can perform.
func (c *Context) restoreEvicted(e lcache.Entry) {
	list := c.List(e.ObjectID())
	if list == nil {
		return
	}
	if rec := list.At(e.Slot); rec != nil {
		rec.SetLCached(false)
	}
	list.RestoreMRU(e.Slot)
}

// Invalidate drops name's lookup-cache entry for id, if any, and clears
// the record's LCACHED bit. Call this before or immediately after
// deleting/replacing a property so a stale cache entry never outlives the
// slot it named (spec.md §8 "cache coherence").
func (c *Context) Invalidate(id cptr.Ptr, name strtab.Handle, rec *property.Record) {
	c.Cache.Invalidate(id, name, c.cfg.GranularityShift, rec)
}

// CreateNamedData adds a NAMED_DATA property to id's list. It fails with
// proplist.ErrPropertyExists if (name's type, name's raw value) is
// already live on this list (spec.md §4.2's "check absence" step, §8's
// uniqueness property).
func (c *Context) CreateNamedData(id cptr.Ptr, name strtab.Handle, value any, attrs property.Attr) (*property.Record, int, error) {
	list := c.List(id)
	if list == nil {
		return nil, 0, errNoSuchObject(id)
	}
	rec, idx, err := list.CreateData(c.listConfig(), c.hasher(), name.DirectType(), name.RawValue(), value, attrs)
	if err != nil {
		return nil, 0, err
	}
	return rec, idx, nil
}

// CreateNamedAccessor adds a NAMED_ACCESSOR property to id's list, the
// pair already allocated via c.Accessors.Put. Fails with
// proplist.ErrPropertyExists under the same condition as CreateNamedData.
func (c *Context) CreateNamedAccessor(id cptr.Ptr, name strtab.Handle, pair cptr.Ptr, attrs property.Attr) (*property.Record, int, error) {
	list := c.List(id)
	if list == nil {
		return nil, 0, errNoSuchObject(id)
	}
	rec, idx, err := list.CreateAccessor(c.listConfig(), c.hasher(), name.DirectType(), name.RawValue(), pair, attrs)
	if err != nil {
		return nil, 0, err
	}
	return rec, idx, nil
}

// CreateInternal adds an INTERNAL property under a magic name to id's
// list. Fails with proplist.ErrPropertyExists if that magic name is
// already live.
func (c *Context) CreateInternal(id cptr.Ptr, magicName uint32, payload any) (*property.Record, int, error) {
	list := c.List(id)
	if list == nil {
		return nil, 0, errNoSuchObject(id)
	}
	rec, idx, err := list.CreateInternal(c.listConfig(), c.hasher(), magicName, payload)
	if err != nil {
		return nil, 0, err
	}
	return rec, idx, nil
}

// DeleteProperty deletes the property at slot idx of id's list. It
// invalidates the lookup-cache entry and frees any side-allocation the
// record's payload holds — an AccessorStore pair or an interned indirect
// string — before calling list.Delete, which overwrites the record's
// name and payload fields (spec.md §4.2's free_property).
func (c *Context) DeleteProperty(id cptr.Ptr, name strtab.Handle, idx int) error {
	list := c.List(id)
	if list == nil {
		return errNoSuchObject(id)
	}
	rec := list.At(idx)
	if rec != nil {
		if rec.IsLCached() {
			c.Invalidate(id, name, rec)
		}
		c.freePropertyPayload(rec)
	}
	status := list.Delete(c.hasher(), idx)
	if c.cfg.Debug && status == hashmap.DeleteRecreate {
		c.log.Debugw("hashmap rebuilt after delete", "object", uint32(id))
	}
	return nil
}

// freePropertyPayload releases rec's side-allocations: a NAMED_ACCESSOR's
// {getter,setter} pair block in c.Accessors, and, for any record carrying
// an indirect (heap-interned) name, that name's refcount in c.Strings.
// Must run before MarkDeleted clears rec's fields.
func (c *Context) freePropertyPayload(rec *property.Record) {
	if rec.GetType() == property.KindNamedAccessor {
		if pair, err := rec.AccessorPointer(); err == nil {
			c.Accessors.Free(pair)
		}
	}
	if rec.NameType == strtab.NameIndirect {
		c.Strings.Release(cptr.Ptr(rec.NameCP))
	}
}

// CloneDeclarativeEnvironment registers a clone of id's list under a
// fresh object id, per spec.md §4.2.
func (c *Context) CloneDeclarativeEnvironment(id cptr.Ptr, copyValues bool) (cptr.Ptr, *proplist.List, error) {
	src := c.List(id)
	if src == nil {
		return cptr.Null, nil, errNoSuchObject(id)
	}
	newID, _, err := c.Alloc.AllocBlock(objectHeaderSize)
	if err != nil {
		c.Fatal(FatalArenaExhausted, "allocate cloned object header", "err", err)
		return cptr.Null, nil, err
	}
	clone := src.CloneDeclarativeEnvironment(c.listConfig(), c.hasher(), copyValues)
	clone.ObjectID = newID
	c.objects.ReplaceOrInsert(objectEntry{id: newID, list: clone})
	return newID, clone, nil
}

func errNoSuchObject(id cptr.Ptr) error {
	return fmt.Errorf("context: no object registered for id %d", uint32(id))
}

// DebugSweep walks every registered object's property list and hashmap
// (if attached) and reports every invariant violation it finds. It is the
// concrete form of spec.md §8's testable properties, meant to be run
// after bursts of mutation in debug builds — ecma/context.Config.Debug
// gates whether cmd/propdump invokes it, the sweep itself has no internal
// gate. Per spec.md §4.3, find "also linearly walks the property list to
// verify membership agreement: the record must appear in both the list
// and the hashmap, or neither" — this walks every live named record and
// checks hm.Find resolves it back to the same slot, not just that the two
// structures' aggregate counts agree.
func (c *Context) DebugSweep() []string {
	var problems []string
	hasher := c.hasher()
	c.objects.Ascend(func(e objectEntry) bool {
		list := e.list
		seen := make(map[string]int)
		hm := list.Hashmap()
		for i := 0; i < list.Len(); i++ {
			rec := list.At(i)
			if rec == nil || rec.IsDeleted() {
				continue
			}
			key := fmt.Sprintf("%d:%d", rec.NameType, rec.NameCP)
			named := rec.NameType != strtab.NameDirectMagic
			if named {
				if prior, dup := seen[key]; dup {
					problems = append(problems, fmt.Sprintf("object %d: duplicate name at slots %d and %d", uint32(e.id), prior, i))
				}
				seen[key] = i
			}
			if hm != nil && isHashmapEligible(rec) {
				slot, ok := hm.Find(list, hasher, rec.NameType, rec.NameCP)
				if !ok {
					problems = append(problems, fmt.Sprintf("object %d: slot %d is live in the list but absent from the hashmap", uint32(e.id), i))
				} else if slot != i {
					problems = append(problems, fmt.Sprintf("object %d: slot %d resolves to slot %d in the hashmap", uint32(e.id), i, slot))
				}
			}
		}
		if hm != nil {
			if hm.LiveCount() != uint32(list.LiveNamedCount()) {
				problems = append(problems, fmt.Sprintf("object %d: hashmap live count %d != list live count %d", uint32(e.id), hm.LiveCount(), list.LiveNamedCount()))
			}
			if hm.NullCount()+hm.UnusedCount()+hm.LiveCount() != hm.BucketCount() {
				problems = append(problems, fmt.Sprintf("object %d: hashmap cell counts don't sum to bucket count", uint32(e.id)))
			}
			if used := hm.Used(); used != nil {
				if used.Count() != uint(hm.LiveCount()) {
					problems = append(problems, fmt.Sprintf("object %d: hashmap occupancy bitset cardinality %d != live count %d", uint32(e.id), used.Count(), hm.LiveCount()))
				}
			}
		}
		return true
	})
	return problems
}

// isHashmapEligible mirrors the hashmap package's own notion of a
// findable slot (ecma/hashmap.isNamedLive): live and named, i.e. not
// VIRTUAL/SPECIAL, which carry no hashmap-findable identity in this
// design.
func isHashmapEligible(rec *property.Record) bool {
	switch rec.GetType() {
	case property.KindNamedData, property.KindNamedAccessor, property.KindInternal:
		return true
	default:
		return false
	}
}
