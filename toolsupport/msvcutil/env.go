// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package msvcutil

import (
	"strings"
)

// pollutingEnv is environment variables read by cl.exe and link.exe
// that change their behavior.
var pollutingEnv = []string{
	"CL",
	"_CL_",
	"INCLUDE",
	"LIBPATH",
	"LINK",
	"_LINK_",
	"LIB",
	"link_repro",
}

// StripEnv returns env without the variables that cl.exe and link.exe
// read implicitly. Names are compared case-insensitively.
func StripEnv(env []string) []string {
	var out []string
	for _, e := range env {
		name, _, _ := strings.Cut(e, "=")
		if isPolluting(name) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func isPolluting(name string) bool {
	for _, p := range pollutingEnv {
		if strings.EqualFold(name, p) {
			return true
		}
	}
	return false
}
