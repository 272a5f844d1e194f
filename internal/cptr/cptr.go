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

// Package cptr implements the compact-pointer allocator: it maps small
// unsigned handles onto offsets into a single memory-mapped arena, the way
// an embedded build maps a 16- or 32-bit "compressed pointer" onto a heap
// base. Encoding and decoding are O(1) and depend only on the configured
// width.
package cptr

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Ptr is a compact pointer: a small integer handle, Null when zero.
type Ptr uint32

// Null is the designated "no reference" value.
const Null Ptr = 0

func (p Ptr) IsNull() bool { return p == Null }

// Width selects the handle's bit width, matching spec.md §6's
// compact_pointer_width switch.
type Width uint8

const (
	Width16 Width = 16
	Width32 Width = 32
)

// granularityShift16 is the allocation-granularity shift applied on
// Width16 builds so a 16-bit handle can still address a useful arena size
// (every block starts on a 1<<granularityShift16-byte boundary).
const granularityShift16 = 3

const alignment = 8

// ErrArenaExhausted is returned by AllocBlock when the arena has no
// contiguous run (free or bump) big enough for the request.
var ErrArenaExhausted = errors.New("cptr: arena exhausted")

type span struct{ off, size uint32 }

// Allocator is a single process-wide arena backed by a memory-mapped
// temporary file. Width16 allocators additionally restrict the
// arena to what a 16-bit handle can address at the configured
// granularity.
type Allocator struct {
	width  Width
	file   *os.File
	region mmap.MMap
	next   uint32
	freed  []span
	log    *zap.SugaredLogger
}

// New creates an allocator with the given handle width and arena capacity
// in bytes. The arena is backed by a temp file mmap'd RDWR so that
// encode/decode really do traverse a mapped region rather than a plain Go
// slice, matching the teacher's own reliance on mmap-go for its snapshot
// segments.
func New(width Width, arenaSize uint32, log *zap.SugaredLogger) (*Allocator, error) {
	f, err := os.CreateTemp("", "ecmacore-arena-*")
	if err != nil {
		return nil, errors.Wrap(err, "cptr: create arena backing file")
	}
	if err := f.Truncate(int64(arenaSize)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, errors.Wrap(err, "cptr: size arena backing file")
	}
	region, err := mmap.MapRegion(f, int(arenaSize), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, errors.Wrap(err, "cptr: mmap arena")
	}
	return &Allocator{
		width:  width,
		file:   f,
		region: region,
		next:   alignUp(1), // offset 0 is reserved so Ptr(0) always means Null
		log:    log,
	}, nil
}

func (a *Allocator) maxOffset() uint32 {
	if a.width == Width16 {
		max := uint32(1)<<16 << granularityShift16
		if max > uint32(len(a.region)) {
			return uint32(len(a.region))
		}
		return max
	}
	return uint32(len(a.region))
}

// AllocBlock is the mandatory allocator: callers treat its failure as
// fatal to the enclosing operation, per spec.md §7.
func (a *Allocator) AllocBlock(size uint32) (Ptr, []byte, error) {
	size = alignUp(size)
	for i, s := range a.freed {
		if s.size >= size {
			off := s.off
			remaining := s.size - size
			if remaining > 0 {
				a.freed[i] = span{off: off + size, size: remaining}
			} else {
				a.freed = append(a.freed[:i], a.freed[i+1:]...)
			}
			return a.encode(off), a.region[off : off+size : off+size], nil
		}
	}
	limit := a.maxOffset()
	if size == 0 || a.next > limit || size > limit-a.next {
		return Null, nil, ErrArenaExhausted
	}
	off := a.next
	a.next += size
	return a.encode(off), a.region[off : off+size : off+size], nil
}

// AllocBlockNullOnError is the optional allocator variant: callers must
// tolerate Null by leaving existing structures untouched (spec.md §5).
func (a *Allocator) AllocBlockNullOnError(size uint32) (Ptr, []byte) {
	p, buf, err := a.AllocBlock(size)
	if err != nil {
		if a.log != nil {
			a.log.Debugw("non-mandatory allocation failed", "size", size, "err", err)
		}
		return Null, nil
	}
	return p, buf
}

// Free returns a block to the freelist. size must match the size passed to
// the original AllocBlock call.
func (a *Allocator) Free(p Ptr, size uint32) {
	if p.IsNull() {
		return
	}
	off := a.decode(p)
	size = alignUp(size)
	if off+size > uint32(len(a.region)) {
		return
	}
	for i := off; i < off+size; i++ {
		a.region[i] = 0
	}
	a.freed = append(a.freed, span{off: off, size: size})
}

// Deref resolves a compact pointer back to its backing bytes.
func (a *Allocator) Deref(p Ptr, size uint32) []byte {
	if p.IsNull() {
		return nil
	}
	off := a.decode(p)
	size = alignUp(size)
	if off+size > uint32(len(a.region)) {
		return nil
	}
	return a.region[off : off+size : off+size]
}

// Close unmaps the arena and removes its backing file.
func (a *Allocator) Close() error {
	if err := a.region.Unmap(); err != nil {
		return errors.Wrap(err, "cptr: unmap arena")
	}
	name := a.file.Name()
	if err := a.file.Close(); err != nil {
		return errors.Wrap(err, "cptr: close arena file")
	}
	return os.Remove(name)
}

func (a *Allocator) encode(off uint32) Ptr {
	if a.width == Width16 {
		return Ptr(off >> granularityShift16)
	}
	return Ptr(off)
}

func (a *Allocator) decode(p Ptr) uint32 {
	if a.width == Width16 {
		return uint32(p) << granularityShift16
	}
	return uint32(p)
}

func alignUp(x uint32) uint32 { return (x + alignment - 1) &^ (alignment - 1) }
