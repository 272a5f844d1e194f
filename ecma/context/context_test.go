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

package context_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ecmacontext "github.com/embedjs/ecmacore/ecma/context"
	"github.com/embedjs/ecmacore/ecma/property"
	"github.com/embedjs/ecmacore/ecma/proplist"
	"github.com/embedjs/ecmacore/internal/cptr"
)

func newTestContext(t *testing.T) *ecmacontext.Context {
	t.Helper()
	cfg := ecmacontext.DefaultConfig()
	cfg.ArenaSize = 1 << 20
	cfg.LookupCacheRows = 4
	cfg.LookupCacheRowLen = 2
	logger, _ := zap.NewDevelopment()
	ctx, err := ecmacontext.New(cfg, logger.Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Alloc.Close() })
	return ctx
}

func TestCreateObjectAndFindRoundTrip(t *testing.T) {
	ctx := newTestContext(t)
	id, _, err := ctx.CreateObject()
	require.NoError(t, err)

	name, err := ctx.Strings.Intern("x")
	require.NoError(t, err)
	_, _, err = ctx.CreateNamedData(id, name, 7, property.AttrWritable|property.AttrEnumerable)
	require.NoError(t, err)

	rec, _, ok := ctx.Find(id, name)
	require.True(t, ok)
	assert.Equal(t, 7, rec.Value())
}

func TestFindCachesAcrossCalls(t *testing.T) {
	ctx := newTestContext(t)
	id, _, err := ctx.CreateObject()
	require.NoError(t, err)
	name, err := ctx.Strings.Intern("x")
	require.NoError(t, err)
	_, _, err = ctx.CreateNamedData(id, name, 1, property.AttrEnumerable)
	require.NoError(t, err)

	rec1, _, ok := ctx.Find(id, name)
	require.True(t, ok)
	assert.True(t, rec1.IsLCached())

	rec2, _, ok := ctx.Find(id, name)
	require.True(t, ok)
	assert.Same(t, rec1, rec2)
}

func TestFindWithLookupCacheDisabledStillResolves(t *testing.T) {
	cfg := ecmacontext.DefaultConfig()
	cfg.ArenaSize = 1 << 20
	cfg.LookupCacheEnabled = false
	logger, _ := zap.NewDevelopment()
	ctx, err := ecmacontext.New(cfg, logger.Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Alloc.Close() })

	id, _, err := ctx.CreateObject()
	require.NoError(t, err)
	name, err := ctx.Strings.Intern("x")
	require.NoError(t, err)
	_, _, err = ctx.CreateNamedData(id, name, 9, property.AttrEnumerable)
	require.NoError(t, err)

	rec, _, ok := ctx.Find(id, name)
	require.True(t, ok)
	assert.Equal(t, 9, rec.Value())
	assert.False(t, rec.IsLCached(), "lookup cache disabled means Find must never set LCACHED")
}

func TestFindUnknownObjectMisses(t *testing.T) {
	ctx := newTestContext(t)
	name, err := ctx.Strings.Intern("x")
	require.NoError(t, err)
	_, _, ok := ctx.Find(cptr.Ptr(99999), name)
	assert.False(t, ok)
}

func TestDeletePropertyInvalidatesCache(t *testing.T) {
	ctx := newTestContext(t)
	id, _, err := ctx.CreateObject()
	require.NoError(t, err)
	name, err := ctx.Strings.Intern("x")
	require.NoError(t, err)
	_, idx, err := ctx.CreateNamedData(id, name, 1, property.AttrEnumerable)
	require.NoError(t, err)

	rec, _, ok := ctx.Find(id, name)
	require.True(t, ok)
	require.True(t, rec.IsLCached())

	require.NoError(t, ctx.DeleteProperty(id, name, idx))
	assert.False(t, rec.IsLCached())

	_, _, ok = ctx.Find(id, name)
	assert.False(t, ok)
}

func TestCloneDeclarativeEnvironmentRegistersNewObject(t *testing.T) {
	ctx := newTestContext(t)
	id, _, err := ctx.CreateObject()
	require.NoError(t, err)
	name, err := ctx.Strings.Intern("x")
	require.NoError(t, err)
	_, _, err = ctx.CreateNamedData(id, name, 5, property.AttrEnumerable)
	require.NoError(t, err)

	cloneID, _, err := ctx.CloneDeclarativeEnvironment(id, true)
	require.NoError(t, err)
	assert.NotEqual(t, id, cloneID)

	rec, _, ok := ctx.Find(cloneID, name)
	require.True(t, ok)
	assert.Equal(t, 5, rec.Value())
}

func TestLookupCacheEvictionRestoresOtherObjectMRU(t *testing.T) {
	ctx := newTestContext(t)
	// The test cache has 4 rows of 2 entries, 8 in all, so caching 9
	// distinct (object, name) pairs must evict at least once.
	ids := make([]cptr.Ptr, 0, 9)
	names := make([]string, 0, 9)
	for i := 0; i < 9; i++ {
		id, _, err := ctx.CreateObject()
		require.NoError(t, err)
		ids = append(ids, id)
		n := fmt.Sprintf("k%d", i)
		names = append(names, n)
		name, err := ctx.Strings.Intern(n)
		require.NoError(t, err)
		_, _, err = ctx.CreateNamedData(id, name, i, property.AttrEnumerable)
		require.NoError(t, err)
		_, _, ok := ctx.Find(id, name)
		require.True(t, ok)
	}
	require.NotEmpty(t, ctx.Cache.EvictionTrail(), "9 entries in an 8-entry cache must evict")

	// Whichever of the first entries got evicted, a fresh Find must still
	// resolve it via the list's restored MRU hint / linear scan, and must
	// re-populate the cache rather than silently failing.
	for i, id := range ids {
		name, err := ctx.Strings.Intern(names[i])
		require.NoError(t, err)
		rec, _, ok := ctx.Find(id, name)
		require.True(t, ok, "object %d must still resolve after cache pressure", i)
		assert.Equal(t, i, rec.Value())
	}
}

func TestCreateNamedAccessorUsesAccessorStore(t *testing.T) {
	ctx := newTestContext(t)
	id, _, err := ctx.CreateObject()
	require.NoError(t, err)

	pair, err := ctx.Accessors.Put(property.AccessorPair{Getter: cptr.Ptr(10)})
	require.NoError(t, err)

	name, err := ctx.Strings.Intern("x")
	require.NoError(t, err)
	_, _, err = ctx.CreateNamedAccessor(id, name, pair, property.AttrEnumerable)
	require.NoError(t, err)

	rec, _, ok := ctx.Find(id, name)
	require.True(t, ok)
	gotPair, err := rec.AccessorPointer()
	require.NoError(t, err)
	assert.Equal(t, pair, gotPair)
	assert.Equal(t, cptr.Ptr(10), ctx.Accessors.Get(pair).Getter)
}

func TestFatalInvokesExitFunc(t *testing.T) {
	ctx := newTestContext(t)
	var gotCode ecmacontext.FatalCode
	var called bool
	ctx.ExitFunc = func(c ecmacontext.FatalCode) {
		called = true
		gotCode = c
	}
	ctx.Fatal(ecmacontext.FatalArenaExhausted, "test fatal")
	assert.True(t, called)
	assert.Equal(t, ecmacontext.FatalArenaExhausted, gotCode)
}

func TestDebugSweepCleanOnFreshObject(t *testing.T) {
	ctx := newTestContext(t)
	id, _, err := ctx.CreateObject()
	require.NoError(t, err)
	name, err := ctx.Strings.Intern("x")
	require.NoError(t, err)
	_, _, err = ctx.CreateNamedData(id, name, 1, property.AttrEnumerable)
	require.NoError(t, err)

	problems := ctx.DebugSweep()
	assert.Empty(t, problems)
}

func TestDebugSweepCleanAfterHashmapAttaches(t *testing.T) {
	ctx := newTestContext(t)
	id, _, err := ctx.CreateObject()
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		name, err := ctx.Strings.Intern(fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		_, _, err = ctx.CreateNamedData(id, name, i, property.AttrEnumerable)
		require.NoError(t, err)
	}

	list := ctx.List(id)
	require.True(t, list.HasHashmap())
	for i := 0; i < 40; i++ {
		name, err := ctx.Strings.Intern(fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		_, _, ok := ctx.Find(id, name)
		require.True(t, ok, "every record the hashmap agreed to attach over must still resolve")
	}

	assert.Empty(t, ctx.DebugSweep(), "a hashmap built from live data must agree with the list on every slot")
}

func TestCreateNamedDataRejectsDuplicateName(t *testing.T) {
	ctx := newTestContext(t)
	id, _, err := ctx.CreateObject()
	require.NoError(t, err)
	name, err := ctx.Strings.Intern("x")
	require.NoError(t, err)
	_, _, err = ctx.CreateNamedData(id, name, 1, property.AttrEnumerable)
	require.NoError(t, err)

	_, _, err = ctx.CreateNamedData(id, name, 2, property.AttrEnumerable)
	assert.ErrorIs(t, err, proplist.ErrPropertyExists)

	rec, _, ok := ctx.Find(id, name)
	require.True(t, ok)
	assert.Equal(t, 1, rec.Value())
}

func TestDeletePropertyFreesAccessorPair(t *testing.T) {
	ctx := newTestContext(t)
	id, _, err := ctx.CreateObject()
	require.NoError(t, err)

	pair, err := ctx.Accessors.Put(property.AccessorPair{Getter: cptr.Ptr(5)})
	require.NoError(t, err)
	name, err := ctx.Strings.Intern("x")
	require.NoError(t, err)
	_, idx, err := ctx.CreateNamedAccessor(id, name, pair, property.AttrEnumerable)
	require.NoError(t, err)

	require.NoError(t, ctx.DeleteProperty(id, name, idx))
	assert.Equal(t, property.AccessorPair{}, ctx.Accessors.Get(pair), "DeleteProperty must free the accessor pair, not just drop the record")
}

func TestDeletePropertyReleasesIndirectName(t *testing.T) {
	ctx := newTestContext(t)
	id, _, err := ctx.CreateObject()
	require.NoError(t, err)

	name, err := ctx.Strings.Intern("a-heap-string")
	require.NoError(t, err)
	require.False(t, name.IsDirect(), "a string this long must intern indirectly for this test to be meaningful")
	_, idx, err := ctx.CreateNamedData(id, name, 1, property.AttrEnumerable)
	require.NoError(t, err)

	require.NoError(t, ctx.DeleteProperty(id, name, idx))
	_, ok := ctx.Strings.Lookup(name.Pointer())
	assert.False(t, ok, "DeleteProperty must release the interned indirect name, not leak its refcount")
}
