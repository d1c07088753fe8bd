// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package kernel

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/nftables"

	"github.com/sentryd/sentryd/internal/ledger"
)

// LinuxBackend implements Backend using the google/nftables library over
// netlink. Mutating calls are serialized with a mutex; the kernel itself
// additionally holds its own lock over the netlink socket per Conn.
type LinuxBackend struct {
	mu sync.Mutex

	family nftables.TableFamily
	table  string

	dynamicV4, dynamicV6 string
	neverV4, neverV6     string
	alwaysV4, alwaysV6   string
}

// NewLinuxBackend builds a backend bound to the given table and set names.
// tableFamily is one of "ip", "ip6", "inet".
func NewLinuxBackend(tableFamily, table, dynamicV4, dynamicV6, neverV4, neverV6, alwaysV4, alwaysV6 string) *LinuxBackend {
	return &LinuxBackend{
		family:    parseFamily(tableFamily),
		table:     table,
		dynamicV4: dynamicV4,
		dynamicV6: dynamicV6,
		neverV4:   neverV4,
		neverV6:   neverV6,
		alwaysV4:  alwaysV4,
		alwaysV6:  alwaysV6,
	}
}

func parseFamily(s string) nftables.TableFamily {
	switch s {
	case "ip":
		return nftables.TableFamilyIPv4
	case "ip6":
		return nftables.TableFamilyIPv6
	default:
		return nftables.TableFamilyINet
	}
}

func (b *LinuxBackend) setFor(ip net.IP) (string, error) {
	switch familyOf(ip) {
	case "v4":
		return b.dynamicV4, nil
	case "v6":
		return b.dynamicV6, nil
	default:
		return "", fmt.Errorf("kernel: unparsable address %q", ip)
	}
}

func (b *LinuxBackend) keyFor(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip.To16()
}

// Block inserts ip into its family's dynamic set with the given timeout.
func (b *LinuxBackend) Block(ip net.IP, ttl time.Duration) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	setName, err := b.setFor(ip)
	if err != nil {
		return Result{Kind: Rejected, Reason: err.Error()}
	}

	conn, err := nftables.New()
	if err != nil {
		return Result{Kind: Rejected, Reason: fmt.Sprintf("connect to netlink: %v", err)}
	}

	table := &nftables.Table{Name: b.table, Family: b.family}
	set := &nftables.Set{Table: table, Name: setName}

	addErr := conn.SetAddElements(set, []nftables.SetElement{
		{Key: b.keyFor(ip), Timeout: ttl},
	})
	if addErr == nil {
		if err := conn.Flush(); err != nil {
			addErr = err
		}
	}

	if addErr != nil {
		if isBenignOverlap(addErr) {
			return Result{Kind: Applied, ExpiresAt: time.Now().Add(ttl), RC: 0}
		}
		return Result{Kind: Rejected, Reason: addErr.Error(), RC: 1}
	}

	return Result{Kind: Applied, ExpiresAt: time.Now().Add(ttl)}
}

// RefreshStatic flushes and repopulates the four static sets.
func (b *LinuxBackend) RefreshStatic(neverV4, neverV6, alwaysV4, alwaysV6 []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("kernel: connect to netlink: %w", err)
	}

	table := &nftables.Table{Name: b.table, Family: b.family}

	specs := []struct {
		name    string
		entries []string
	}{
		{b.neverV4, neverV4},
		{b.neverV6, neverV6},
		{b.alwaysV4, alwaysV4},
		{b.alwaysV6, alwaysV6},
	}

	for _, spec := range specs {
		if spec.name == "" {
			continue
		}
		set := &nftables.Set{Table: table, Name: spec.name}
		conn.FlushSet(set)

		elems := make([]nftables.SetElement, 0, len(spec.entries))
		for _, raw := range spec.entries {
			ip, ipNet, cidrErr := net.ParseCIDR(raw)
			if cidrErr != nil {
				ip = net.ParseIP(raw)
				if ip == nil {
					continue
				}
				elems = append(elems, nftables.SetElement{Key: normalizeKey(ip)})
				continue
			}
			_ = ipNet
			elems = append(elems, nftables.SetElement{Key: normalizeKey(ip)})
		}
		if len(elems) > 0 {
			if err := conn.SetAddElements(set, elems); err != nil {
				return fmt.Errorf("kernel: repopulate set %s: %w", spec.name, err)
			}
		}
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("kernel: flush static sets: %w", err)
	}
	return nil
}

func normalizeKey(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip.To16()
}

// Snapshot reads the dynamic sets' elements and converts residual TTLs to
// absolute expiry timestamps.
func (b *LinuxBackend) Snapshot() ([]ledger.EnforcedEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("kernel: connect to netlink: %w", err)
	}

	table := &nftables.Table{Name: b.table, Family: b.family}
	now := time.Now()
	var entries []ledger.EnforcedEntry

	for _, setName := range []string{b.dynamicV4, b.dynamicV6} {
		if setName == "" {
			continue
		}
		set, err := conn.GetSetByName(table, setName)
		if err != nil {
			continue // set not present yet; nothing enforced
		}
		elems, err := conn.GetSetElements(set)
		if err != nil {
			continue
		}
		for _, el := range elems {
			ip := net.IP(el.Key)
			residual := el.Timeout
			entries = append(entries, ledger.EnforcedEntry{
				IP:        ip,
				ExpiresAt: now.Add(residual),
			})
		}
	}

	return entries, nil
}
