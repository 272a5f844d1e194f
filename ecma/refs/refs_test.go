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

package refs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ecmacontext "github.com/embedjs/ecmacore/ecma/context"
	"github.com/embedjs/ecmacore/ecma/refs"
	"github.com/embedjs/ecmacore/internal/cptr"
)

func newTestContext(t *testing.T) *ecmacontext.Context {
	t.Helper()
	cfg := ecmacontext.DefaultConfig()
	cfg.ArenaSize = 1 << 16
	logger, _ := zap.NewDevelopment()
	ctx, err := ecmacontext.New(cfg, logger.Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Alloc.Close() })
	return ctx
}

func TestErrorRefRefDeref(t *testing.T) {
	r := refs.NewErrorRef("boom", true)
	ctx := newTestContext(t)
	r.Ref(ctx)
	assert.Equal(t, uint16(2), r.Count())

	assert.False(t, r.Deref())
	assert.True(t, r.Deref(), "the second deref must report the count reached zero")
}

func TestErrorRefDistinguishesExceptionFromAbort(t *testing.T) {
	exc := refs.NewErrorRef("thrown", true)
	value, isException := exc.RaiseFromRef()
	assert.Equal(t, "thrown", value)
	assert.True(t, isException)

	abort := refs.NewErrorRef("aborted", false)
	value, isException = abort.RaiseFromRef()
	assert.Equal(t, "aborted", value)
	assert.False(t, isException)
}

func TestErrorRefSaturationIsFatal(t *testing.T) {
	r := refs.NewErrorRef("boom", true)
	ctx := newTestContext(t)
	var fataled bool
	ctx.ExitFunc = func(code ecmacontext.FatalCode) {
		fataled = true
		assert.Equal(t, ecmacontext.FatalRefCountLimit, code)
	}
	for i := 0; i < 70000; i++ {
		r.Ref(ctx)
	}
	assert.True(t, fataled)
}

func TestBytecodePoolFreesImmediatelyWithoutDebug(t *testing.T) {
	alloc, err := cptr.New(cptr.Width32, 4096, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })

	p, _, err := alloc.AllocBlock(32)
	require.NoError(t, err)
	ref := refs.NewBytecodeRef(p, 32)

	pool := refs.NewPool(alloc, false, 4, nil)
	pool.Deref(ref)
	assert.Empty(t, pool.PendingTrail())
}

func TestBytecodePoolRetainsOnDebugTrail(t *testing.T) {
	alloc, err := cptr.New(cptr.Width32, 4096, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })

	pool := refs.NewPool(alloc, true, 4, nil)
	p, _, err := alloc.AllocBlock(32)
	require.NoError(t, err)
	ref := refs.NewBytecodeRef(p, 32)

	pool.Deref(ref)
	trail := pool.PendingTrail()
	require.Len(t, trail, 1)
	assert.Same(t, ref, trail[0])
}

func TestBytecodePoolTrailBounded(t *testing.T) {
	alloc, err := cptr.New(cptr.Width32, 1<<16, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })

	pool := refs.NewPool(alloc, true, 2, nil)
	for i := 0; i < 5; i++ {
		p, _, err := alloc.AllocBlock(32)
		require.NoError(t, err)
		pool.Deref(refs.NewBytecodeRef(p, 32))
	}
	assert.LessOrEqual(t, len(pool.PendingTrail()), 2)
}
