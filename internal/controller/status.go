package controller

import (
	"context"
	"errors"
	"fmt"
	"log"

	"nordctl/internal/state"
	"nordctl/internal/util"
)

// tunnelInterface is the device OpenVPN creates for `dev tun` configs.
const tunnelInterface = "tun0"

// NoServerSentinel is reported when no server has ever been selected.
const NoServerSentinel = "none"

// Status is the read-only snapshot reported by the status subcommand
// and the status API.
type Status struct {
	VPNService      string `json:"vpnService"`
	VPNState        string `json:"vpnState"`
	FirewallService string `json:"firewallService"`
	FirewallState   string `json:"firewallState"`
	TunnelState     string `json:"tunnelState"`
	Online          bool   `json:"online"`
	Server          string `json:"server"`
	SelectedAt      string `json:"selectedAt,omitempty"`
}

// Status collects the service states, connectivity and current server.
// It is read-only and needs no privilege.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	st := Status{
		VPNService:      c.cfg.VPNService,
		FirewallService: c.cfg.FirewallService,
		Server:          NoServerSentinel,
	}

	vpnState, err := c.services.State(c.cfg.VPNService)
	if err != nil {
		return Status{}, fmt.Errorf("query %s: %w", c.cfg.VPNService, err)
	}
	st.VPNState = vpnState.String()

	fwState, err := c.services.State(c.cfg.FirewallService)
	if err != nil {
		return Status{}, fmt.Errorf("query %s: %w", c.cfg.FirewallService, err)
	}
	st.FirewallState = fwState.String()

	_, operState, err := util.InterfaceOperState(tunnelInterface)
	if err != nil {
		operState = "unknown"
	}
	st.TunnelState = operState

	st.Online = c.probe.Online(ctx)

	sel, err := c.store.Current()
	switch {
	case err == nil:
		st.Server = sel.ConfigFile
		st.SelectedAt = sel.SelectedAt.Format("2006-01-02 15:04:05 MST")
	case errors.Is(err, state.ErrNoSelection):
		// keep the sentinel
	default:
		// An unreadable state store reports like an absent one.
		log.Printf("selection store unreadable: %v", err)
	}
	return st, nil
}
