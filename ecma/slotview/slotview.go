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

// Package slotview declares the narrow read interface a property list
// exposes to its accelerators (the hashmap and the lookup cache) so
// neither of those packages needs to import the list package itself.
package slotview

import "github.com/embedjs/ecmacore/ecma/property"

// Source is a read-only view over a property list's slot array, indexed
// 0-based internally. spec.md's "1-based slot index" is a presentation
// detail of the hashmap's stored cell value (ecma/hashmap stores slot
// index + 1 in each live cell); the view itself always speaks 0-based Go
// indices.
type Source interface {
	Len() int
	At(index int) *property.Record
}
