// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

const (
	sectionGlobal          = "global"
	hostSectionPrefix      = "host:"
	detectorSectionPrefix  = "detector:"
	pluginSectionPrefix    = "PublicBlocklistPlugins:"
)

// Load reads the primary config file, merges lexicographically-sorted
// additional files from dir, applies a host:<short-hostname> override
// section, and returns a fully validated Snapshot. Warnings are non-fatal
// (an empty never_block_v4, a pattern that failed to compile); an error
// means the Snapshot must not be activated.
func Load(mainPath, dir string) (*Snapshot, []Warning, error) {
	sources, err := collectSources(mainPath, dir)
	if err != nil {
		return nil, nil, err
	}

	var opts []interface{}
	for _, s := range sources {
		opts = append(opts, s)
	}

	file, err := ini.LoadSources(ini.LoadOptions{AllowShadows: false}, opts[0], opts[1:]...)
	if err != nil {
		return nil, nil, fmt.Errorf("config: parse: %w", err)
	}

	snap := defaultSnapshot()
	var warnings []Warning

	bad, badWarnings := compileBadConnPatterns()
	warnings = append(warnings, badWarnings...)

	if sec, err := file.GetSection(sectionGlobal); err == nil {
		applyScalarSection(snap, sec, &warnings)
	}

	hostname, _ := os.Hostname()
	shortHost := strings.SplitN(hostname, ".", 2)[0]
	snap.Hostname = shortHost
	if sec, err := file.GetSection(hostSectionPrefix + shortHost); err == nil {
		applyScalarSection(snap, sec, &warnings)
	}

	detectors, detWarnings := parseDetectors(file, &warnings)
	snap.Detectors = detectors

	plugins := parsePlugins(file)
	snap.Plugins = plugins

	all := append([]Pattern{}, bad...)
	for _, d := range detectors {
		all = append(all, d.Patterns...)
	}
	snap.CompiledPatterns = all
	warnings = append(warnings, detWarnings...)

	if len(snap.NeverBlockV4) == 0 {
		warnings = append(warnings, Warning{Message: "never_block_v4 is empty — every candidate IPv4 address, including your own management address, can be blocked"})
	}

	if errs := Validate(snap); len(errs) > 0 {
		return nil, warnings, fmt.Errorf("config: invalid: %s", joinErrors(errs))
	}

	return snap, warnings, nil
}

// collectSources returns mainPath followed by the lexicographically sorted
// *.ini and *.conf files in dir (dir may not exist, which is not an error).
func collectSources(mainPath, dir string) ([]string, error) {
	if _, err := os.Stat(mainPath); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", mainPath, err)
	}
	sources := []string{mainPath}

	if dir == "" {
		return sources, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return sources, nil
		}
		return nil, fmt.Errorf("config: read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".ini") || strings.HasSuffix(e.Name(), ".conf") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		sources = append(sources, filepath.Join(dir, n))
	}
	return sources, nil
}

// applyScalarSection sets Snapshot fields found in sec, leaving everything
// else at its current (default, or previously-overridden) value.
func applyScalarSection(snap *Snapshot, sec *ini.Section, warnings *[]Warning) {
	dur := func(key string, dst *time.Duration) {
		if !sec.HasKey(key) {
			return
		}
		v, err := time.ParseDuration(sec.Key(key).String())
		if err != nil {
			*warnings = append(*warnings, Warning{Message: fmt.Sprintf("invalid duration for %s: %v", key, err)})
			return
		}
		*dst = v
	}
	str := func(key string, dst *string) {
		if sec.HasKey(key) {
			*dst = sec.Key(key).String()
		}
	}
	boolean := func(key string, dst *bool) {
		if sec.HasKey(key) {
			*dst = sec.Key(key).MustBool(*dst)
		}
	}
	intv := func(key string, dst *int) {
		if sec.HasKey(key) {
			*dst = sec.Key(key).MustInt(*dst)
		}
	}
	list := func(key string, dst *[]string) {
		if sec.HasKey(key) {
			*dst = splitTrimmed(sec.Key(key).String())
		}
	}

	dur("block_duration", &snap.BlockDuration)
	dur("sleep_time", &snap.SleepTime)
	dur("heartbeat", &snap.Heartbeat)
	dur("initial_lookback", &snap.InitialLookback)
	dur("graceful_timeout", &snap.GracefulTimeout)
	dur("cleanup_interval", &snap.CleanupInterval)

	list("never_block_v4", &snap.NeverBlockV4)
	list("never_block_v6", &snap.NeverBlockV6)
	list("always_block_v4", &snap.AlwaysBlockV4)
	list("always_block_v6", &snap.AlwaysBlockV6)

	str("table_family", &snap.Firewall.TableFamily)
	str("table_name", &snap.Firewall.TableName)
	str("dynamic_set_v4", &snap.Firewall.DynamicSetV4)
	str("dynamic_set_v6", &snap.Firewall.DynamicSetV6)
	str("never_set_v4", &snap.Firewall.NeverSetV4)
	str("never_set_v6", &snap.Firewall.NeverSetV6)
	str("always_set_v4", &snap.Firewall.AlwaysSetV4)
	str("always_set_v6", &snap.Firewall.AlwaysSetV6)
	boolean("dry_run", &snap.Firewall.DryRun)

	str("store_dsn", &snap.Store.DSN)
	intv("batch_size", &snap.Store.BatchSize)
	dur("batch_timeout", &snap.Store.BatchTimeout)

	boolean("auto_mode", &snap.AutoMode)
	list("exclude_units", &snap.ExcludeUnits)
	intv("max_file_tail_lines", &snap.MaxFileTailLines)
	str("metrics_listen", &snap.MetricsListen)
}

func splitTrimmed(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDetectors(file *ini.File, warnings *[]Warning) ([]Detector, []Warning) {
	var detectors []Detector
	var dw []Warning
	for _, sec := range file.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, detectorSectionPrefix) {
			continue
		}
		rest := strings.TrimPrefix(name, detectorSectionPrefix)
		detName, host := rest, ""
		if idx := strings.Index(rest, "@"); idx >= 0 {
			detName, host = rest[:idx], rest[idx+1:]
		}

		d := Detector{Name: detName, Host: host}
		d.Service = sec.Key("service").MustString(detName)
		if sec.HasKey("units") {
			d.Units = splitTrimmed(sec.Key("units").String())
		}
		if sec.HasKey("files") {
			d.Files = splitTrimmed(sec.Key("files").String())
		}
		if sec.HasKey("remote_files") {
			d.RemoteFiles = splitTrimmed(sec.Key("remote_files").String())
		}
		d.RemoteUser = sec.Key("remote_user").String()
		d.RemotePort = sec.Key("remote_port").MustInt(22)
		d.RemoteJournald = sec.Key("remote_journald").MustBool(false)
		d.FetchMethod = sec.Key("fetch_method").MustString("scp")
		if iv := sec.Key("fetch_interval").String(); iv != "" {
			if v, err := time.ParseDuration(iv); err == nil {
				d.FetchInterval = v
			}
		}
		d.CacheDir = sec.Key("cache_dir").String()
		d.MaxThreshold = sec.Key("max_threshold").MustInt(0)
		if tw := sec.Key("time_window").String(); tw != "" {
			if v, err := time.ParseDuration(tw); err == nil {
				d.TimeWindow = v
			}
		}

		patRe := regexp.MustCompile(`^pattern\d+$`)
		for _, key := range sec.Keys() {
			if !patRe.MatchString(key.Name()) {
				continue
			}
			src := key.String()
			re, err := regexp.Compile(src)
			if err != nil {
				dw = append(dw, Warning{Detector: d.Key(), Message: "uncompilable pattern, excluded: " + src})
				continue
			}
			d.Patterns = append(d.Patterns, Pattern{Source: src, Compiled: re})
		}

		if len(d.Patterns) == 0 {
			dw = append(dw, Warning{Detector: d.Key(), Message: "detector has zero compiled patterns and is inert"})
		}

		detectors = append(detectors, d)
	}
	return detectors, dw
}

func parsePlugins(file *ini.File) []Plugin {
	var plugins []Plugin
	for _, sec := range file.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, pluginSectionPrefix) {
			continue
		}
		p := Plugin{
			Name:        strings.TrimPrefix(name, pluginSectionPrefix),
			Active:      sec.Key("active").MustBool(false),
			URL:         sec.Key("url").String(),
			CacheDir:    sec.Key("cache_dir").String(),
			IncludeIPv6: sec.Key("include_ipv6").MustBool(false),
		}
		if iv := sec.Key("fetch_interval").String(); iv != "" {
			if v, err := time.ParseDuration(iv); err == nil {
				p.FetchInterval = v
			}
		}
		if p.FetchInterval == 0 {
			p.FetchInterval = time.Hour
		}
		plugins = append(plugins, p)
	}
	return plugins
}

func joinErrors(errs []error) string {
	var sb strings.Builder
	for i, e := range errs {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.Error())
	}
	return sb.String()
}
