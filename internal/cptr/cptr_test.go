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

package cptr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedjs/ecmacore/internal/cptr"
)

func newTestAllocator(t *testing.T, width cptr.Width, size uint32) *cptr.Allocator {
	t.Helper()
	a, err := cptr.New(width, size, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAllocBlockRoundTrip(t *testing.T) {
	a := newTestAllocator(t, cptr.Width32, 4096)
	p, buf, err := a.AllocBlock(16)
	require.NoError(t, err)
	assert.False(t, p.IsNull())

	copy(buf, "hello world12345")
	got := a.Deref(p, 16)
	assert.Equal(t, "hello world12345", string(got))
}

func TestAllocBlockNeverReturnsNull(t *testing.T) {
	a := newTestAllocator(t, cptr.Width32, 4096)
	p, _, err := a.AllocBlock(8)
	require.NoError(t, err)
	assert.NotEqual(t, cptr.Null, p)
}

func TestAllocBlockExhaustsArena(t *testing.T) {
	a := newTestAllocator(t, cptr.Width32, 64)
	_, _, err := a.AllocBlock(1000)
	assert.ErrorIs(t, err, cptr.ErrArenaExhausted)
}

func TestFreeAllowsReuse(t *testing.T) {
	a := newTestAllocator(t, cptr.Width32, 256)
	p1, _, err := a.AllocBlock(32)
	require.NoError(t, err)
	a.Free(p1, 32)

	p2, _, err := a.AllocBlock(32)
	require.NoError(t, err)
	assert.Equal(t, p1, p2, "a freed block of matching size should be reused before bumping next")
}

func TestWidth16GranularityShift(t *testing.T) {
	a := newTestAllocator(t, cptr.Width16, 1<<20)
	p1, _, err := a.AllocBlock(8)
	require.NoError(t, err)
	p2, _, err := a.AllocBlock(8)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
	assert.True(t, uint32(p2) < 1<<16)
}

func TestAllocBlockNullOnErrorDoesNotFail(t *testing.T) {
	a := newTestAllocator(t, cptr.Width32, 32)
	p, buf := a.AllocBlockNullOnError(1000)
	assert.Equal(t, cptr.Null, p)
	assert.Nil(t, buf)
}
