// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"net"
	"time"
)

// SyslogConfig describes an optional remote syslog forwarder.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // "udp" or "tcp"
	Tag      string
	Facility int
}

// DefaultSyslogConfig returns remote syslog forwarding in its disabled, default shape.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "sentryd",
		Facility: 1, // user-level messages
	}
}

// SyslogWriter forwards pre-formatted log lines to a remote syslog collector.
// It satisfies io.Writer so it can be composed into a Logger's Output.
type SyslogWriter struct {
	conn net.Conn
	tag  string
	pri  int
}

// NewSyslogWriter dials the remote collector described by cfg.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("logging: syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "sentryd"
	}

	conn, err := net.DialTimeout(cfg.Protocol, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("logging: dial syslog collector: %w", err)
	}

	return &SyslogWriter{
		conn: conn,
		tag:  cfg.Tag,
		pri:  cfg.Facility*8 + 6, // facility*8 + severity(info)
	}, nil
}

// Write implements io.Writer, framing p as an RFC3164-shaped syslog message.
func (w *SyslogWriter) Write(p []byte) (int, error) {
	msg := fmt.Sprintf("<%d>%s %s: %s", w.pri, time.Now().Format(time.Stamp), w.tag, p)
	if _, err := w.conn.Write([]byte(msg)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close releases the underlying connection.
func (w *SyslogWriter) Close() error {
	return w.conn.Close()
}
