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
	"github.com/embedjs/ecmacore/internal/strtab"
)

func TestNewDataRoundTrip(t *testing.T) {
	rec := property.NewData(strtab.NameDirectString, 1, 42, property.AttrWritable|property.AttrEnumerable)
	assert.Equal(t, property.KindNamedData, rec.GetType())
	assert.Equal(t, 42, rec.Value())
	assert.True(t, rec.IsWritable())
	assert.True(t, rec.IsEnumerable())
	assert.False(t, rec.IsConfigurable())
}

func TestSetValueRejectsVirtual(t *testing.T) {
	rec := property.NewVirtual(strtab.NameDirectString, 1, func() any { return 7 }, property.AttrEnumerable)
	assert.Equal(t, 7, rec.Value())
	err := rec.SetValue(9)
	require.ErrorIs(t, err, property.ErrVirtualReadOnly)
	assert.Equal(t, 7, rec.Value(), "virtual value is still computed, unaffected by the rejected set")
}

func TestVirtualNeverWritable(t *testing.T) {
	rec := property.NewVirtual(strtab.NameDirectString, 1, func() any { return nil }, property.AttrWritable)
	assert.False(t, rec.IsWritable(), "NewVirtual must strip AttrWritable regardless of what's passed in")
}

func TestAttributeIdempotence(t *testing.T) {
	rec := property.NewData(strtab.NameDirectString, 1, nil, 0)
	rec.SetEnumerable(true)
	rec.SetEnumerable(true)
	assert.True(t, rec.IsEnumerable())
	rec.SetEnumerable(false)
	rec.SetEnumerable(false)
	assert.False(t, rec.IsEnumerable())
}

func TestWritableOnlyAppliesToNamedData(t *testing.T) {
	rec := property.NewAccessor(strtab.NameDirectString, 1, 0, 0)
	rec.SetWritable(true)
	assert.False(t, rec.IsWritable(), "accessors have no writable bit of their own")
}

func TestMarkDeletedClearsPayload(t *testing.T) {
	rec := property.NewData(strtab.NameDirectString, 1, "hello", property.AttrWritable)
	rec.MarkDeleted(0xFFFFFFFF)
	assert.True(t, rec.IsDeleted())
	assert.Equal(t, property.KindDeleted, rec.GetType())
	assert.Equal(t, uint32(0xFFFFFFFF), rec.NameCP)
	assert.Nil(t, rec.Value())
}

func TestAccessorPointerRejectsNonAccessor(t *testing.T) {
	rec := property.NewData(strtab.NameDirectString, 1, nil, 0)
	_, err := rec.AccessorPointer()
	require.ErrorIs(t, err, property.ErrNotAccessor)
}

func TestAttrBitsExcludesLCached(t *testing.T) {
	rec := property.NewData(strtab.NameDirectString, 1, nil, property.AttrWritable)
	rec.SetLCached(true)
	bits := rec.AttrBits()
	assert.Equal(t, property.AttrWritable, bits)
}
