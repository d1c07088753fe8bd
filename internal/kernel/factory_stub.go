// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package kernel

import "github.com/sentryd/sentryd/internal/config"

// NewBackend builds the platform-appropriate Backend from a firewall
// config. On non-Linux platforms this is always the in-memory StubBackend;
// DryRun has no additional effect since nothing real is ever touched.
func NewBackend(fw config.FirewallConfig) Backend {
	var b Backend = NewStubBackend()
	if fw.DryRun {
		b = NewDryRunBackend(b)
	}
	return b
}
