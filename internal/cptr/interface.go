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

package cptr

// BlockAllocator is the narrow interface the rest of the core depends on,
// so tests can substitute a fake arena without mmap'ing real memory.
type BlockAllocator interface {
	AllocBlock(size uint32) (Ptr, []byte, error)
	AllocBlockNullOnError(size uint32) (Ptr, []byte)
	Free(p Ptr, size uint32)
	Deref(p Ptr, size uint32) []byte
}

var _ BlockAllocator = (*Allocator)(nil)
