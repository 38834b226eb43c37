// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package statestore persists build states.
//
// A state is stored as compressed JSON in the state directory, one file
// per identifier and architecture. Compression is detected from the
// magic bytes on load, so flipping compression options keeps existing
// files loadable.
package statestore

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"

	"go.chromium.org/infra/build/msvcinc/ccompile"
	"go.chromium.org/infra/build/msvcinc/clink"
)

const defaultStateDir = ".msvcinc"

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// ErrIncompatible is returned by Load when the stored state can't be
// used by this version.
var ErrIncompatible = errors.New("incompatible state")

// Option is an option for the state store.
type Option struct {
	Dir           string
	CompressZstd  bool
	CompressLevel int
	// GzipUsesBgzf writes gzip in bgzf blocks, compressed in parallel.
	GzipUsesBgzf bool
}

// RegisterFlags registers flags for the option.
func (o *Option) RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.StringVar(&o.Dir, "state_dir", defaultStateDir, "directory to store build states, relative to the workspace root")
	flagSet.BoolVar(&o.CompressZstd, "state_zstd", true, "compress build states with zstd instead of gzip")
	flagSet.IntVar(&o.CompressLevel, "state_compress_level", 3, "compression level of build states")
	flagSet.BoolVar(&o.GzipUsesBgzf, "state_bgzf", false, "use bgzf for gzip compressed build states")
}

// State is a persisted state of a build.
type State struct {
	Build *ccompile.BuildState `json:"build"`
	// Link is the state of the last successful link.
	Link *clink.State `json:"link,omitempty"`
}

// FileName returns the file name of the state for identifier and arch.
func (o Option) FileName(identifier, arch string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, identifier+"-"+arch)
	return filepath.Join(o.Dir, name+".state")
}

func loadFile(fname string) ([]byte, error) {
	b, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	var r io.ReadCloser
	switch {
	case bytes.HasPrefix(b, zstdMagic):
		d, err := zstd.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		r = d.IOReadCloser()
	case bytes.HasPrefix(b, gzipMagic):
		// bgzf is concatenated gzip members.
		gr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		r = gr
	default:
		return b, nil
	}
	b, err = io.ReadAll(r)
	if err != nil {
		r.Close()
		return nil, err
	}
	err = r.Close()
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Load loads the state for identifier and arch.
// It returns an error wrapping fs.ErrNotExist if there is no state,
// and ErrIncompatible if the state is of other version or of other
// build.
func Load(ctx context.Context, opt Option, identifier, arch string) (*State, error) {
	fname := opt.FileName(identifier, arch)
	b, err := loadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", fname, err)
	}
	st := &State{}
	err = json.Unmarshal(b, st)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", fname, ErrIncompatible, err)
	}
	switch {
	case st.Build == nil:
		return nil, fmt.Errorf("load %s: %w: no build state", fname, ErrIncompatible)
	case st.Build.Version != ccompile.StateVersion:
		return nil, fmt.Errorf("load %s: %w: version %d != %d", fname, ErrIncompatible, st.Build.Version, ccompile.StateVersion)
	case st.Build.Identifier != identifier || st.Build.Architecture != arch:
		return nil, fmt.Errorf("load %s: %w: state of %s-%s", fname, ErrIncompatible, st.Build.Identifier, st.Build.Architecture)
	}
	if st.Build.Records == nil {
		st.Build.Records = make(map[string]*ccompile.CompiledFileRecord)
	}
	if st.Build.PrecompiledHeaders == nil {
		st.Build.PrecompiledHeaders = make(map[string]*ccompile.PCHRecord)
	}
	log.Infof("loaded state %s: %d records", fname, len(st.Build.Records))
	return st, nil
}

func compress(w io.Writer, data []byte, opt Option) error {
	var wc io.WriteCloser
	var err error
	switch {
	case opt.CompressZstd:
		level := zstd.SpeedDefault
		if opt.CompressLevel > 0 {
			level = zstd.EncoderLevelFromZstd(opt.CompressLevel)
		}
		wc, err = zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	case opt.GzipUsesBgzf:
		level := gzip.DefaultCompression
		if opt.CompressLevel > 0 {
			level = min(opt.CompressLevel, gzip.BestCompression)
		}
		wc, err = bgzf.NewWriterLevel(w, level, runtime.NumCPU())
	default:
		level := gzip.DefaultCompression
		if opt.CompressLevel > 0 {
			level = min(opt.CompressLevel, gzip.BestCompression)
		}
		wc, err = gzip.NewWriterLevel(w, level)
	}
	if err != nil {
		return err
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return err
	}
	return wc.Close()
}

func saveFile(fname string, data []byte, opt Option) error {
	err := os.MkdirAll(filepath.Dir(fname), 0755)
	if err != nil {
		return err
	}
	tmp := fname + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = compress(f, data, opt)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	// save old state in *.0
	ofname := fname + ".0"
	if err := os.Remove(ofname); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(fname, ofname); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(tmp, fname)
}

// Save persists st.
func Save(ctx context.Context, opt Option, st *State) error {
	if st.Build == nil {
		return errors.New("no build state to save")
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	fname := opt.FileName(st.Build.Identifier, st.Build.Architecture)
	err = saveFile(fname, b, opt)
	if err != nil {
		return fmt.Errorf("save %s: %w", fname, err)
	}
	log.Infof("saved state %s: %d bytes", fname, len(b))
	return nil
}

// Remove removes the state for identifier and arch, and its backup.
func Remove(ctx context.Context, opt Option, identifier, arch string) error {
	fname := opt.FileName(identifier, arch)
	var errs []error
	for _, f := range []string{fname, fname + ".0"} {
		err := os.Remove(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
