// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runtimex fixes the following API in standard runtime package.
// - NumCPU()
//
// It also describes the host for toolchain selection.
package runtimex

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

var (
	ncpu int
)

func init() {
	ncpu = getproccount()
	if ncpu == 0 {
		ncpu = runtime.NumCPU()
	}
}

// NumCPU returns the number of logical CPUs usable by the current process.
// On Windows, runtime.NumCPU() only returns the information for a single Processor Group (up to 64).
// runtimex.NumCPU() uses GetActiveProcessorCount to get cpu counts from all Processor Groups.
// See the solution in kubernetes.
// https://github.com/kubernetes/kubernetes/blob/a4b8a3b2e33a3b591884f69b64f439e6b880dc40/pkg/kubelet/winstats/perfcounter_nodestats_windows.go#L205
// On non-Windows, runtime.NumCPU() is used as is.
func NumCPU() int {
	return ncpu
}

// HostArch returns the msvc name of the host architecture,
// as used in "bin/Host<arch>".
func HostArch() string {
	return ArchName(runtime.GOARCH)
}

// ArchName converts GOARCH to the msvc architecture name.
// Unknown names are returned as is.
func ArchName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	}
	return goarch
}

// EnvironmentQualifier identifies the execution environment of the
// toolchain. A change of it invalidates the incremental state.
func EnvironmentQualifier(hostArch string) string {
	return runtime.GOOS + "/" + hostArch
}

// CPUSummary returns a one-line description of the host CPU.
func CPUSummary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cpu family=%d model=%d stepping=%d ", cpuid.CPU.Family, cpuid.CPU.Model, cpuid.CPU.Stepping)
	fmt.Fprintf(&sb, "brand=%q vendor=%q ", cpuid.CPU.BrandName, cpuid.CPU.VendorString)
	fmt.Fprintf(&sb, "physicalCores=%d threadsPerCore=%d logicalCores=%d numcpu=%d ", cpuid.CPU.PhysicalCores, cpuid.CPU.ThreadsPerCore, cpuid.CPU.LogicalCores, ncpu)
	fmt.Fprintf(&sb, "vm=%t", cpuid.CPU.VM())
	return sb.String()
}
