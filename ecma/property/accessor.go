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

package property

import "github.com/embedjs/ecmacore/internal/cptr"

// AccessorPair is the (getter, setter) pair a NAMED_ACCESSOR record points
// at. Either half may be cptr.Null, meaning "absent".
type AccessorPair struct {
	Getter cptr.Ptr
	Setter cptr.Ptr
}

// AccessorStore is the pooled side-allocation described by spec.md §4.1:
// "on compact-pointer-32 builds the accessor pair is out-of-line behind
// another compact pointer." This core always stores pairs out-of-line
// through AccessorStore, since a Go struct gets no layout benefit from the
// wide-pointer inline variant the spec allows for Width16 builds.
type AccessorStore struct {
	alloc cptr.BlockAllocator
	pairs map[cptr.Ptr]AccessorPair
}

const pairBlockSize = 8

func NewAccessorStore(alloc cptr.BlockAllocator) *AccessorStore {
	return &AccessorStore{alloc: alloc, pairs: make(map[cptr.Ptr]AccessorPair)}
}

// Put allocates a new pair slot. Replacement of either half afterward is
// O(1) via SetGetter/SetSetter.
func (s *AccessorStore) Put(pair AccessorPair) (cptr.Ptr, error) {
	p, _, err := s.alloc.AllocBlock(pairBlockSize)
	if err != nil {
		return cptr.Null, err
	}
	s.pairs[p] = pair
	return p, nil
}

func (s *AccessorStore) Get(p cptr.Ptr) AccessorPair { return s.pairs[p] }

func (s *AccessorStore) SetGetter(p cptr.Ptr, getter cptr.Ptr) {
	pair := s.pairs[p]
	pair.Getter = getter
	s.pairs[p] = pair
}

func (s *AccessorStore) SetSetter(p cptr.Ptr, setter cptr.Ptr) {
	pair := s.pairs[p]
	pair.Setter = setter
	s.pairs[p] = pair
}

// Free releases the indirect pair, matching "freeing an accessor record
// releases the indirect pair if any" (spec.md §4.1).
func (s *AccessorStore) Free(p cptr.Ptr) {
	if p.IsNull() {
		return
	}
	delete(s.pairs, p)
	s.alloc.Free(p, pairBlockSize)
}
