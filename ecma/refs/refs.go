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

// Package refs implements the two small refcounted collaborators
// spec.md §6 mentions in passing: error references (a saturating 16-bit
// count wrapping a thrown value so several live exceptions can share one
// heap record) and bytecode references (function byte-code blocks shared
// across closures, with an optional debug-mode pending-free trail so a
// remote debugger can still single-step code the interpreter itself has
// already decided to free).
package refs

import (
	"container/list"

	"go.uber.org/zap"

	"github.com/embedjs/ecmacore/ecma/context"
	"github.com/embedjs/ecmacore/internal/cptr"
)

// refCountLimit is the saturation ceiling; going past it is a fatal
// condition (spec.md §7), not a wraparound, since a refcount that wraps
// to zero would free a still-referenced value.
const refCountLimit = 0xFFFF

// ErrorRef wraps a thrown value behind a saturating refcount so multiple
// in-flight exception handlers can share one underlying error value. The
// IsException flag distinguishes an ordinary thrown exception from a
// jerry-level abort, the one distinction spec.md §7 calls out as this
// record's whole purpose.
type ErrorRef struct {
	Value       any
	IsException bool
	count       uint16
}

// NewErrorRef creates a reference with an initial count of 1. isException
// mirrors error_ref_create's second argument: true for an ordinary thrown
// value, false for an engine-level abort.
func NewErrorRef(value any, isException bool) *ErrorRef {
	return &ErrorRef{Value: value, IsException: isException, count: 1}
}

// RaiseFromRef reads back the value this reference carries and whether it
// is an ordinary exception (true) or an abort (false), the
// raise_from_ref-equivalent read-back spec.md §6/§7 describes.
func (r *ErrorRef) RaiseFromRef() (value any, isException bool) {
	return r.Value, r.IsException
}

// Ref increments the refcount. Reaching the 16-bit ceiling is reported to
// ctx as fatal rather than silently saturating, since a saturated count
// can never reach zero again and the value would leak for the rest of the
// context's lifetime.
func (r *ErrorRef) Ref(ctx *context.Context) {
	if r.count >= refCountLimit {
		ctx.Fatal(context.FatalRefCountLimit, "error reference count limit exceeded", "limit", refCountLimit)
		return
	}
	r.count++
}

// Deref decrements the refcount and reports whether it reached zero (the
// caller should release Value and stop using r).
func (r *ErrorRef) Deref() bool {
	if r.count == 0 {
		return true
	}
	r.count--
	return r.count == 0
}

// Count returns the current refcount, for tests and debug tooling.
func (r *ErrorRef) Count() uint16 { return r.count }

// BytecodeRef wraps a compiled function's byte-code block. Several
// closures created from the same function expression share one
// BytecodeRef; the block's storage is freed once every closure drops its
// reference.
type BytecodeRef struct {
	Code  cptr.Ptr
	Size  uint32
	count uint16
}

// NewBytecodeRef wraps ptr/size with an initial refcount of 1.
func NewBytecodeRef(ptr cptr.Ptr, size uint32) *BytecodeRef {
	return &BytecodeRef{Code: ptr, Size: size, count: 1}
}

func (b *BytecodeRef) Ref(ctx *context.Context) {
	if b.count >= refCountLimit {
		ctx.Fatal(context.FatalRefCountLimit, "bytecode reference count limit exceeded", "limit", refCountLimit)
		return
	}
	b.count++
}

func (b *BytecodeRef) Count() uint16 { return b.count }

// Pool tracks live BytecodeRef values and, in debug builds, keeps freed
// blocks on a pending-free trail instead of returning them to the
// allocator immediately, so a remote debugger attached mid-session can
// still disassemble code the interpreter has logically finished with.
type Pool struct {
	alloc      cptr.BlockAllocator
	debug      bool
	log        *zap.SugaredLogger
	pending    *list.List // of *BytecodeRef, oldest first
	pendingN   int
	maxPending int
}

// NewPool creates a bytecode reference pool. maxPending bounds the
// debug-mode pending-free trail; it is ignored when debug is false.
func NewPool(alloc cptr.BlockAllocator, debug bool, maxPending int, log *zap.SugaredLogger) *Pool {
	if maxPending <= 0 {
		maxPending = 64
	}
	return &Pool{alloc: alloc, debug: debug, log: log, pending: list.New(), maxPending: maxPending}
}

// Deref drops one reference to ref. At zero, the block is either freed
// immediately (non-debug) or moved onto the pending-free trail, where it
// is only actually freed once the trail grows past maxPending.
func (p *Pool) Deref(ref *BytecodeRef) {
	if ref.count == 0 {
		return
	}
	ref.count--
	if ref.count > 0 {
		return
	}
	if !p.debug {
		p.alloc.Free(ref.Code, ref.Size)
		return
	}
	p.pending.PushBack(ref)
	p.pendingN++
	if p.log != nil {
		p.log.Debugw("bytecode block retained on pending-free trail", "code", uint32(ref.Code), "trail_len", p.pendingN)
	}
	for p.pendingN > p.maxPending {
		front := p.pending.Front()
		old := front.Value.(*BytecodeRef)
		p.alloc.Free(old.Code, old.Size)
		p.pending.Remove(front)
		p.pendingN--
	}
}

// PendingTrail returns the blocks currently retained for debugger
// inspection, oldest first.
func (p *Pool) PendingTrail() []*BytecodeRef {
	out := make([]*BytecodeRef, 0, p.pendingN)
	for e := p.pending.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*BytecodeRef))
	}
	return out
}
