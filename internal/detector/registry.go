// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package detector exposes the set of named detectors compiled from the
// active config snapshot as a small lookup registry consumed by source
// discovery and the log reader.
package detector

import "github.com/sentryd/sentryd/internal/config"

// Registry is a keyed view over config.Snapshot.Detectors.
type Registry struct {
	byKey map[string]config.Detector
	order []string
}

// Build compiles a Registry from snap. Detector order is preserved so
// discovery and logging stay deterministic across runs with the same
// config.
func Build(snap *config.Snapshot) *Registry {
	r := &Registry{byKey: make(map[string]config.Detector, len(snap.Detectors))}
	for _, d := range snap.Detectors {
		key := d.Key()
		r.byKey[key] = d
		r.order = append(r.order, key)
	}
	return r
}

// Get returns the detector registered under key, if any.
func (r *Registry) Get(key string) (config.Detector, bool) {
	d, ok := r.byKey[key]
	return d, ok
}

// All returns every detector in registration order.
func (r *Registry) All() []config.Detector {
	out := make([]config.Detector, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// Local returns only detectors with no Host (host absent => local).
func (r *Registry) Local() []config.Detector {
	var out []config.Detector
	for _, d := range r.All() {
		if d.Host == "" {
			out = append(out, d)
		}
	}
	return out
}

// Remote returns only detectors with a non-empty Host.
func (r *Registry) Remote() []config.Detector {
	var out []config.Detector
	for _, d := range r.All() {
		if d.Host != "" {
			out = append(out, d)
		}
	}
	return out
}
