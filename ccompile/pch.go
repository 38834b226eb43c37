// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ccompile

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/msvcinc/fingerprint"
	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil"
)

// pchSubdir is the subdirectory of the output directory for
// precompiled headers. It is kept by stale output removal.
const pchSubdir = "pch"

// pchConfig returns the configuration to create the precompiled header
// used by cfg. Sources sharing it share the precompiled header.
func pchConfig(cfg Config) Config {
	p := *cfg.PCH
	p.ForceInclude = false
	return Config{
		Language:      cfg.Language,
		IncludeDirs:   cfg.IncludeDirs,
		ForceIncludes: cfg.ForceIncludes,
		Macros:        cfg.Macros,
		Flags:         cfg.Flags,
		PCH:           &p,
	}
}

func pchKey(cfg Config) string {
	buf, err := json.Marshal(pchConfig(cfg))
	if err != nil {
		// Config only has strings.
		panic(err)
	}
	return string(buf)
}

// PCHNames assigns deterministic names to precompiled headers used by
// units. Names are the header file name without extension, with "_<n>"
// suffix for distinct configurations of the same header.
// It returns a map from pch key to name.
func PCHNames(units []Unit) map[string]string {
	byKey := make(map[string]Config)
	for _, u := range units {
		if u.Config.PCH == nil {
			continue
		}
		byKey[pchKey(u.Config)] = u.Config
	}
	names := make(map[string]string, len(byKey))
	present := make(map[string]bool)
	for _, key := range slices.Sorted(maps.Keys(byKey)) {
		h := byKey[key].PCH.Header
		base := h.Path
		if !h.IsLocal() {
			base = h.ID
		}
		base = path.Base(strings.ReplaceAll(base, `\`, "/"))
		base = strings.TrimSuffix(base, path.Ext(base))
		name := base
		for i := 1; present[strings.ToLower(name)]; i++ {
			name = base + "_" + strconv.Itoa(i)
		}
		present[strings.ToLower(name)] = true
		names[key] = name
	}
	return names
}

// pchResult is the precompiled header available for sources.
type pchResult struct {
	ok bool
	// header is the header file name for /Yu.
	header string
	// pchPath is the local path of the .pch file.
	pchPath string
	record  *PCHRecord
	// diagnostics are reported on failure.
	diagnostics []Diagnostic
}

// pchManager creates each precompiled header at most once per build.
type pchManager struct {
	names map[string]string
	// prev are records that may be reused after verification.
	prev  map[string]*PCHRecord
	cache lazyCache[*pchResult]

	mu      sync.Mutex
	records map[string]*PCHRecord
}

func newPCHManager(names map[string]string, prev map[string]*PCHRecord) *pchManager {
	return &pchManager{
		names:   names,
		prev:    prev,
		records: make(map[string]*PCHRecord),
	}
}

// get returns the precompiled header for cfg, creating it if needed.
// includeDirs and forceIncludes are local paths for cfg.
func (m *pchManager) get(ctx context.Context, e *Executor, cfg Config, includeDirs, forceIncludes []string) *pchResult {
	name, ok := m.names[pchKey(cfg)]
	if !ok {
		return &pchResult{
			header: cfg.PCH.Header.String(),
			diagnostics: []Diagnostic{{
				Severity:  SeverityError,
				LineIndex: -1,
				Message:   fmt.Sprintf("no precompiled header assigned for %s", cfg.PCH.Header),
			}},
		}
	}
	p, _ := m.cache.get(name, func() (*pchResult, error) {
		p := m.create(ctx, e, name, pchConfig(cfg), includeDirs, forceIncludes)
		if p.ok {
			m.mu.Lock()
			m.records[name] = p.record
			m.mu.Unlock()
		}
		return p, nil
	})
	return p
}

// Records returns records of precompiled headers available in this build.
func (m *pchManager) Records() map[string]*PCHRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.records)
}

func (m *pchManager) create(ctx context.Context, e *Executor, name string, cfg Config, includeDirs, forceIncludes []string) *pchResult {
	p := &pchResult{header: path.Base(filepath.ToSlash(cfg.PCH.Header.String()))}
	err := m.compile(ctx, e, name, cfg, includeDirs, forceIncludes, p)
	if err != nil {
		log.Warnf("pch %s: %v", name, err)
		p.ok = false
		p.diagnostics = append(p.diagnostics, Diagnostic{
			Severity:  SeverityError,
			LineIndex: -1,
			Message:   err.Error(),
		})
	}
	p.diagnostics = SortDiagnostics(p.diagnostics)
	return p
}

func (m *pchManager) compile(ctx context.Context, e *Executor, name string, cfg Config, includeDirs, forceIncludes []string, p *pchResult) error {
	hdr, err := e.paths.file(ctx, cfg.PCH.Header)
	if err != nil {
		return fmt.Errorf("precompiled header %s: %w", cfg.PCH.Header, err)
	}
	p.header = filepath.Base(hdr)
	hfp, err := fingerprint.FromFile(hdr)
	if err != nil {
		return fmt.Errorf("precompiled header %s: %w", cfg.PCH.Header, err)
	}
	pchLogical := path.Join(e.outDir, pchSubdir, name+".pch")
	objLogical := path.Join(e.outDir, pchSubdir, name+".obj")
	p.pchPath = e.mirror.LocalPath(pchLogical)
	obj := e.mirror.LocalPath(objLogical)

	if prev := m.prev[name]; prev != nil && isPCHUpToDate(prev, cfg, hfp, p.pchPath, obj) {
		log.Infof("pch %s is up to date", name)
		p.ok = true
		p.record = prev
		return nil
	}

	cl, dir, err := e.compiler(ctx)
	if err != nil {
		return err
	}
	for _, f := range []string{p.pchPath, obj} {
		err = prepareOutput(f)
		if err != nil {
			return err
		}
	}
	args, err := msvcutil.CompileArgs{
		Exe:           cl,
		Language:      cfg.Language,
		Source:        hdr,
		Output:        obj,
		Flags:         cfg.Flags,
		IncludeDirs:   includeDirs,
		ForceIncludes: forceIncludes,
		Macros:        cfg.Macros,
		PCH: &msvcutil.PCHArgs{
			Create: true,
			Path:   p.pchPath,
		},
	}.Args()
	if err != nil {
		return err
	}
	out, code, err := e.runProcess(ctx, "pch", name, args, dir)
	if err != nil {
		return err
	}
	a := newOutputAnalyzer(e.mirror, dir, hdr, includeDirs, e.bases(hdr, includeDirs))
	a.analyze(out)
	// the header is a dependency of the sources using it.
	a.includes[a.pathOf(hdr)] = true
	rec := &PCHRecord{
		Config:           cfg,
		InputFingerprint: hfp,
		PCHPath:          pchLogical,
		ObjPath:          objLogical,
		Diagnostics:      SortDiagnostics(a.diagnostics),
		Includes:         a.includeList(),
		FailedIncludes:   a.failedIncludeList(),
	}
	p.diagnostics = rec.Diagnostics
	if code != 0 {
		if a.output.Len() == 0 && !HasError(p.diagnostics) {
			p.diagnostics = append(p.diagnostics, Diagnostic{
				Severity:  SeverityError,
				LineIndex: -1,
				Message:   exitCodeMessage("cl", code),
			})
		}
		log.Warnf("pch %s: exit=%d\n%s", name, code, a.output.String())
		return nil
	}
	rec.PCHFingerprint, err = fingerprint.FromFile(p.pchPath)
	if err != nil {
		return fmt.Errorf("cl succeeded but %s is not available: %w", pchLogical, err)
	}
	rec.ObjFingerprint, err = fingerprint.FromFile(obj)
	if err != nil {
		return fmt.Errorf("cl succeeded but %s is not available: %w", objLogical, err)
	}
	p.ok = true
	p.record = rec
	return nil
}

// isPCHUpToDate reports whether prev can be used for cfg.
// The header and the outputs must be the same as recorded.
func isPCHUpToDate(prev *PCHRecord, cfg Config, hfp fingerprint.Fingerprint, pchPath, objPath string) bool {
	if !prev.Config.Equal(cfg) || prev.InputFingerprint != hfp {
		return false
	}
	fp, err := fingerprint.FromFile(pchPath)
	if err != nil || fp != prev.PCHFingerprint {
		return false
	}
	fp, err = fingerprint.FromFile(objPath)
	return err == nil && fp == prev.ObjFingerprint
}
