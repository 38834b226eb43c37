// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package state

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/msvcinc/ccompile"
	"go.chromium.org/infra/build/msvcinc/clink"
	"go.chromium.org/infra/build/msvcinc/statestore"
	"go.chromium.org/infra/build/msvcinc/toolchain"
)

func TestDump(t *testing.T) {
	b := ccompile.NewBuildState("app", "x64", ccompile.Identity{
		Toolchain: map[string]toolchain.Description{
			toolchain.MSVC: {Name: toolchain.MSVC, Version: "14.40", Root: "C:/VC"},
		},
		Environment: "windows-x64",
	})
	b.Records["main.c"] = &ccompile.CompiledFileRecord{
		Config:     ccompile.Config{Source: "src/main.c"},
		OutputPath: "out/obj/main.c.obj",
		Diagnostics: []ccompile.Diagnostic{
			{Path: "src/main.c", Severity: ccompile.SeverityWarning, LineIndex: 2, Code: "C4101", Message: "unreferenced local variable"},
		},
		Includes: []string{"inc/main.h"},
	}
	b.Records["broken.c"] = &ccompile.CompiledFileRecord{
		Config: ccompile.Config{Source: "src/broken.c"},
		Diagnostics: []ccompile.Diagnostic{
			{Severity: ccompile.SeverityError, LineIndex: -1, Message: "failed to start process"},
		},
		FailedIncludes: []string{"inc/missing.h"},
	}
	b.PrecompiledHeaders["pch"] = &ccompile.PCHRecord{
		Config:  ccompile.Config{PCH: &ccompile.PCHConfig{Header: ccompile.Local("inc/pch.h")}},
		PCHPath: "out/obj/pch/pch.pch",
		ObjPath: "out/obj/pch/pch.obj",
	}
	st := &statestore.State{
		Build: b,
		Link:  &clink.State{Output: "out/app.exe"},
	}

	for _, tc := range []struct {
		name     string
		includes bool
		want     []string
	}{
		{
			name: "default",
			want: []string{
				"app-x64 version=1 environment=windows-x64",
				"sdk MSVC version=14.40 root=C:/VC",
				"record broken.c failed src=src/broken.c out=",
				"  src/broken.c: error: failed to start process",
				"  failed_include inc/missing.h",
				"record main.c ok src=src/main.c out=out/obj/main.c.obj",
				"  src/main.c(3): warning C4101: unreferenced local variable",
				"pch pch header=inc/pch.h pch=out/obj/pch/pch.pch obj=out/obj/pch/pch.obj",
				"link out/app.exe inputs=0",
			},
		},
		{
			name:     "includes",
			includes: true,
			want: []string{
				"app-x64 version=1 environment=windows-x64",
				"sdk MSVC version=14.40 root=C:/VC",
				"record broken.c failed src=src/broken.c out=",
				"  src/broken.c: error: failed to start process",
				"  failed_include inc/missing.h",
				"record main.c ok src=src/main.c out=out/obj/main.c.obj",
				"  src/main.c(3): warning C4101: unreferenced local variable",
				"  include inc/main.h",
				"pch pch header=inc/pch.h pch=out/obj/pch/pch.pch obj=out/obj/pch/pch.obj",
				"link out/app.exe inputs=0",
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var sb strings.Builder
			err := dump(&sb, st, tc.includes)
			if err != nil {
				t.Fatalf("dump(...)=%v; want nil error", err)
			}
			got := strings.Split(strings.TrimSuffix(sb.String(), "\n"), "\n")
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("dump(...) diff -want +got:\n%s", diff)
			}
		})
	}
}
