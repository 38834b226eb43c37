// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildconfig

import (
	"maps"
	"slices"

	"go.starlark.net/starlark"
)

// starFlags returns a frozen dict of flags.
func starFlags(flags map[string]string) starlark.Value {
	dict := starlark.NewDict(len(flags))
	// Starlark dictionaries preserve insertion order, so we iterate over the
	// sorted keys to ensure a deterministic order.
	for _, k := range slices.Sorted(maps.Keys(flags)) {
		dict.SetKey(starlark.String(k), starlark.String(flags[k]))
	}
	dict.Freeze()
	return dict
}

func packList(list []string) starlark.Value {
	values := make([]starlark.Value, 0, len(list))
	for _, elem := range list {
		values = append(values, starlark.String(elem))
	}
	return starlark.NewList(values)
}
