// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package kernel

import "github.com/sentryd/sentryd/internal/config"

// NewBackend builds the platform-appropriate Backend from a firewall
// config, wrapping it in a DryRunBackend when DryRun is set.
func NewBackend(fw config.FirewallConfig) Backend {
	var b Backend = NewLinuxBackend(fw.TableFamily, fw.TableName,
		fw.DynamicSetV4, fw.DynamicSetV6,
		fw.NeverSetV4, fw.NeverSetV6,
		fw.AlwaysSetV4, fw.AlwaysSetV6)
	if fw.DryRun {
		b = NewDryRunBackend(b)
	}
	return b
}
