// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ccompile

import (
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/msvcinc/changefeed"
)

// WorkPlan is the result of Plan.
type WorkPlan struct {
	// Reused are records carried over from the previous state,
	// keyed by output name.
	Reused map[string]*CompiledFileRecord
	// ReusedPCH are precompiled header records carried over,
	// keyed by pch name. They are still verified before use.
	ReusedPCH map[string]*PCHRecord
	// Pending are units to compile, in the requested order.
	Pending []Unit
	// FullRebuild is true if nothing could be reused because of
	// no previous state or identity change.
	FullRebuild bool
}

// Plan decides which units need compilation.
//
// If prev is nil or prev's identity differs from id, all units are
// pending. Otherwise a unit reuses its previous record iff
//   - the record exists for the output name,
//   - the configuration is equal,
//   - the previous compilation succeeded,
//   - the output is not changed,
//   - no include related change touches its includes or failed includes,
//   - the source is not changed,
//   - the precompiled header it uses, if any, is not dropped.
//
// A precompiled header record is dropped if an include related change
// touches it, or its outputs changed.
//
// Plan doesn't access files. All changes come from cs.
func Plan(prev *BuildState, id Identity, units []Unit, cs changefeed.ChangeSet) *WorkPlan {
	p := &WorkPlan{
		Reused:    make(map[string]*CompiledFileRecord),
		ReusedPCH: make(map[string]*PCHRecord),
	}
	if prev == nil {
		log.Debugf("no previous state. compile all %d", len(units))
		p.Pending = slices.Clone(units)
		p.FullRebuild = true
		return p
	}
	if !prev.Identity.Equal(id) {
		log.Infof("toolchain or environment changed. compile all %d", len(units))
		p.Pending = slices.Clone(units)
		p.FullRebuild = true
		return p
	}
	added := make(map[string]bool, len(cs.IncludeAdded))
	for _, name := range cs.IncludeAdded {
		added[strings.ToLower(name)] = true
	}
	var dropped []Config
	for name, r := range prev.PrecompiledHeaders {
		switch {
		case isAnyIncludeRelatedChange(cs.IncludeChanged, added, r.Includes),
			isAnyIncludeRelatedChange(cs.IncludeChanged, added, r.FailedIncludes):
			log.Debugf("drop pch %s: include changed", name)
		case contains(cs.OutputChanged, r.PCHPath), contains(cs.OutputChanged, r.ObjPath):
			log.Debugf("drop pch %s: output changed", name)
		default:
			p.ReusedPCH[name] = r
			continue
		}
		dropped = append(dropped, r.Config)
	}
	for _, u := range units {
		reason := recompileReason(prev.Records[u.OutputName], u, cs, added)
		if reason == "" && u.Config.PCH != nil && slices.ContainsFunc(dropped, pchConfig(u.Config).Equal) {
			reason = "precompiled header changed"
		}
		if reason != "" {
			log.Debugf("recompile %s: %s", u.OutputName, reason)
			p.Pending = append(p.Pending, u)
			continue
		}
		log.Debugf("reuse %s", u.OutputName)
		p.Reused[u.OutputName] = prev.Records[u.OutputName]
	}
	return p
}

func recompileReason(r *CompiledFileRecord, u Unit, cs changefeed.ChangeSet, added map[string]bool) string {
	switch {
	case r == nil:
		return "not compiled previously"
	case !r.Config.Equal(u.Config):
		return "config changed"
	case !r.Succeeded():
		return "failed previously"
	case contains(cs.OutputChanged, r.OutputPath):
		return "output changed"
	case isAnyIncludeRelatedChange(cs.IncludeChanged, added, r.Includes):
		return "include changed"
	case isAnyIncludeRelatedChange(cs.IncludeChanged, added, r.FailedIncludes):
		return "failed include changed"
	case contains(cs.SourceChanged, u.Config.Source):
		return "source changed"
	}
	return ""
}

// contains reports whether sorted paths contains p.
func contains(paths []string, p string) bool {
	_, ok := slices.BinarySearch(paths, p)
	return ok
}

// isAnyIncludeRelatedChange reports whether includes (sorted) intersect
// with changed (sorted), or any include has the same base name as an
// added file, compared case-insensitively.
//
// A file added with the same name may change include resolution even if
// it is not reachable from the unit's include directories. Such a unit
// is recompiled anyway.
func isAnyIncludeRelatedChange(changed []string, added map[string]bool, includes []string) bool {
	if len(includes) == 0 {
		return false
	}
	if len(changed) > 0 {
		lo := sort.SearchStrings(includes, changed[0])
		hi := sort.Search(len(includes), func(i int) bool {
			return includes[i] > changed[len(changed)-1]
		})
		if lo < hi && intersects(includes[lo:hi], changed) {
			return true
		}
	}
	if len(added) > 0 {
		for _, inc := range includes {
			if added[strings.ToLower(path.Base(inc))] {
				return true
			}
		}
	}
	return false
}

// intersects reports whether sorted a and b have a common element.
func intersects(a, b []string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			return true
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return false
}
