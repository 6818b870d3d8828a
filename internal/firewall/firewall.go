// Package firewall keeps UFW allow rules synchronized with the active
// VPN server. With the VPN-specific rules installed the wildcard allow
// pair for the interface is removed, so general traffic is blocked
// unless it flows to the VPN endpoint: a simple kill-switch.
package firewall

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"go4.org/netipx"

	"nordctl/internal/servers"
	"nordctl/internal/system"
)

// Action selects between installing and retracting rules.
type Action string

const (
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
)

// ErrInvalidAction indicates a caller bug: the synchronizer only
// understands ActionAdd and ActionDelete.
var ErrInvalidAction = errors.New("invalid firewall action")

// endpointPrefixBits is the width of the allow rule around the server
// address. NordVPN endpoints move within their /24.
const endpointPrefixBits = 24

// Synchronizer applies and retracts UFW rules derived from the active
// OpenVPN configuration.
type Synchronizer struct {
	iface            string
	activeConfigPath string
	runner           system.CommandRunner
}

// NewSynchronizer creates a synchronizer for the given interface.
func NewSynchronizer(iface, activeConfigPath string, runner system.CommandRunner) (*Synchronizer, error) {
	if strings.TrimSpace(iface) == "" {
		return nil, errors.New("firewall interface is required")
	}
	if runner == nil {
		runner = system.ExecRunner{}
	}
	return &Synchronizer{
		iface:            iface,
		activeConfigPath: activeConfigPath,
		runner:           runner,
	}, nil
}

// Sync installs (ActionAdd) or retracts (ActionDelete) the VPN-specific
// allow rules derived from the active configuration, and applies the
// inverse action to the wildcard allow pair for the interface. The
// VPN-specific phase is skipped when no active configuration exists;
// the wildcard phase always runs.
func (s *Synchronizer) Sync(action Action) error {
	if action != ActionAdd && action != ActionDelete {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	raw, err := os.ReadFile(s.activeConfigPath)
	switch {
	case err == nil:
		endpoints, err := servers.ParseRemoteEndpoints(string(raw))
		if err != nil {
			return fmt.Errorf("active config %s: %w", s.activeConfigPath, err)
		}
		if err := s.applyEndpointRules(action, endpoints); err != nil {
			return err
		}
	case errors.Is(err, os.ErrNotExist):
		// No server selected yet; only the wildcard pair is managed.
	default:
		return fmt.Errorf("active config %s: %w", s.activeConfigPath, err)
	}

	return s.applyWildcardRules(inverse(action))
}

// Reload runs `ufw reload`.
func (s *Synchronizer) Reload() error {
	return s.ufw("reload")
}

func (s *Synchronizer) applyEndpointRules(action Action, endpoints []servers.Endpoint) error {
	groups, err := groupEndpoints(endpoints)
	if err != nil {
		return err
	}
	for _, g := range groups {
		port := strconv.Itoa(int(g.port))
		cidr := g.prefix.String()
		in := []string{"allow", "in", "on", s.iface, "from", cidr, "to", "any", "port", port, "proto", "udp"}
		out := []string{"allow", "out", "on", s.iface, "to", cidr, "port", port, "proto", "udp"}
		if err := s.ufw(withAction(action, in)...); err != nil {
			return err
		}
		if err := s.ufw(withAction(action, out)...); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) applyWildcardRules(action Action) error {
	in := []string{"allow", "in", "on", s.iface}
	out := []string{"allow", "out", "on", s.iface}
	if err := s.ufw(withAction(action, in)...); err != nil {
		return err
	}
	return s.ufw(withAction(action, out)...)
}

func (s *Synchronizer) ufw(args ...string) error {
	out, err := s.runner.Output("ufw", args...)
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("ufw %s: %w: %s", strings.Join(args, " "), err, detail)
		}
		return fmt.Errorf("ufw %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

func withAction(action Action, rule []string) []string {
	if action == ActionDelete {
		return append([]string{"delete"}, rule...)
	}
	return rule
}

func inverse(action Action) Action {
	if action == ActionAdd {
		return ActionDelete
	}
	return ActionAdd
}

type ruleGroup struct {
	prefix netip.Prefix
	port   uint16
}

// groupEndpoints collapses the endpoint addresses into a minimal set of
// /24 prefixes per port, so a config with several remote lines in the
// same network yields one rule pair instead of duplicates.
func groupEndpoints(endpoints []servers.Endpoint) ([]ruleGroup, error) {
	byPort := make(map[uint16]*netipx.IPSetBuilder)
	ports := make([]uint16, 0, 1)
	for _, endpoint := range endpoints {
		prefix, err := endpoint.Addr.Prefix(endpointPrefixBits)
		if err != nil {
			return nil, err
		}
		builder, ok := byPort[endpoint.Port]
		if !ok {
			builder = new(netipx.IPSetBuilder)
			byPort[endpoint.Port] = builder
			ports = append(ports, endpoint.Port)
		}
		builder.AddPrefix(prefix)
	}

	var groups []ruleGroup
	for _, port := range ports {
		set, err := byPort[port].IPSet()
		if err != nil {
			return nil, err
		}
		for _, prefix := range set.Prefixes() {
			groups = append(groups, ruleGroup{prefix: prefix, port: port})
		}
	}
	return groups, nil
}
