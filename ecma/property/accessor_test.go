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

package property_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedjs/ecmacore/ecma/property"
	"github.com/embedjs/ecmacore/internal/cptr"
)

type fakeAllocator struct {
	next cptr.Ptr
	live map[cptr.Ptr]bool
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{next: 8, live: make(map[cptr.Ptr]bool)}
}

func (f *fakeAllocator) AllocBlock(size uint32) (cptr.Ptr, []byte, error) {
	p := f.next
	f.next += cptr.Ptr(size)
	f.live[p] = true
	return p, make([]byte, size), nil
}

func (f *fakeAllocator) AllocBlockNullOnError(size uint32) (cptr.Ptr, []byte) {
	p, buf, _ := f.AllocBlock(size)
	return p, buf
}

func (f *fakeAllocator) Free(p cptr.Ptr, size uint32) { delete(f.live, p) }
func (f *fakeAllocator) Deref(p cptr.Ptr, size uint32) []byte { return nil }

func TestAccessorStorePutGetReplace(t *testing.T) {
	store := property.NewAccessorStore(newFakeAllocator())
	p, err := store.Put(property.AccessorPair{Getter: 10, Setter: 20})
	require.NoError(t, err)

	pair := store.Get(p)
	assert.Equal(t, cptr.Ptr(10), pair.Getter)
	assert.Equal(t, cptr.Ptr(20), pair.Setter)

	store.SetGetter(p, 99)
	assert.Equal(t, cptr.Ptr(99), store.Get(p).Getter)

	store.SetSetter(p, 100)
	assert.Equal(t, cptr.Ptr(100), store.Get(p).Setter)
}

func TestAccessorStoreFreeClearsEntry(t *testing.T) {
	alloc := newFakeAllocator()
	store := property.NewAccessorStore(alloc)
	p, err := store.Put(property.AccessorPair{})
	require.NoError(t, err)

	store.Free(p)
	assert.False(t, alloc.live[p])
	assert.Equal(t, property.AccessorPair{}, store.Get(p))
}

func TestAccessorStoreFreeNullIsNoop(t *testing.T) {
	store := property.NewAccessorStore(newFakeAllocator())
	store.Free(cptr.Null)
}
