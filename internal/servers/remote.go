// Package servers manages the NordVPN server configuration bundle: it
// refreshes the extracted configuration tree from the download archive,
// installs one configuration as the active OpenVPN client config, and
// parses the remote endpoints the firewall rules are derived from.
package servers

import (
	"bufio"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Endpoint is a parsed `remote` directive: an IPv4 address and UDP port.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Addr, e.Port)
}

// ParseRemoteEndpoints extracts every `remote` directive from raw
// OpenVPN configuration text. Each directive must carry a literal IPv4
// address and a port; anything else is an error rather than a silently
// wrong firewall rule.
func ParseRemoteEndpoints(raw string) ([]Endpoint, error) {
	var endpoints []Endpoint

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.EqualFold(fields[0], "remote") {
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: remote directive needs an address and a port", lineNum)
		}
		endpoint, err := parseEndpoint(fields[1], fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		endpoints = append(endpoints, endpoint)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no remote directive found")
	}
	return endpoints, nil
}

func parseEndpoint(addrToken, portToken string) (Endpoint, error) {
	addr, err := netip.ParseAddr(addrToken)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid remote address %q: %w", addrToken, err)
	}
	if !addr.Is4() {
		return Endpoint{}, fmt.Errorf("remote address %q is not IPv4", addrToken)
	}
	port, err := strconv.ParseUint(portToken, 10, 16)
	if err != nil || port == 0 {
		return Endpoint{}, fmt.Errorf("invalid remote port %q", portToken)
	}
	return Endpoint{Addr: addr, Port: uint16(port)}, nil
}
