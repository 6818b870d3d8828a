// Package controller wires the service manager, firewall synchronizer,
// bundle refresher and selection store into the nordctl lifecycle
// operations. Operations are synchronous and perform no retries: a
// failing step surfaces the underlying tool's error and leaves the
// remaining steps undone, exactly like the privileged tools themselves
// would.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"nordctl/internal/config"
	"nordctl/internal/firewall"
	"nordctl/internal/service"
	"nordctl/internal/state"
)

// ErrNoServerConfigured indicates `start` without a name and without an
// ever-selected server.
var ErrNoServerConfigured = errors.New("no server configured")

// Narrow consumer interfaces so tests can drive the controller with
// recording fakes.

type firewallSynchronizer interface {
	Sync(action firewall.Action) error
	Reload() error
}

type bundleRefresher interface {
	Refresh(ctx context.Context) error
}

type serverSelector interface {
	Select(name string) error
}

type selectionStore interface {
	Current() (state.Selection, error)
}

// Controller executes the nordctl lifecycle operations.
type Controller struct {
	cfg       config.Config
	services  service.ServiceManager
	fw        firewallSynchronizer
	refresher bundleRefresher
	selector  serverSelector
	store     selectionStore
	probe     *Probe
}

// New wires a controller from its collaborators.
func New(
	cfg config.Config,
	services service.ServiceManager,
	fw firewallSynchronizer,
	refresher bundleRefresher,
	selector serverSelector,
	store selectionStore,
	probe *Probe,
) *Controller {
	return &Controller{
		cfg:       cfg,
		services:  services,
		fw:        fw,
		refresher: refresher,
		selector:  selector,
		store:     store,
		probe:     probe,
	}
}

// Start brings the VPN up. With a server name it behaves exactly like
// Set; without one it requires a previously installed active
// configuration and reuses it.
func (c *Controller) Start(ctx context.Context, name string) error {
	if name != "" {
		return c.Set(ctx, name)
	}
	if _, err := os.Stat(c.cfg.ActiveConfigPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoServerConfigured
		}
		return fmt.Errorf("active config %s: %w", c.cfg.ActiveConfigPath, err)
	}
	if err := c.services.Start(c.cfg.VPNService); err != nil {
		return err
	}
	if err := c.fw.Sync(firewall.ActionAdd); err != nil {
		return err
	}
	return c.fw.Reload()
}

// Stop brings the VPN down and restores the wildcard allow rules.
func (c *Controller) Stop() error {
	if err := c.services.Stop(c.cfg.VPNService); err != nil {
		return err
	}
	if err := c.fw.Sync(firewall.ActionDelete); err != nil {
		return err
	}
	return c.fw.Reload()
}

// Restart bounces the VPN service without touching firewall rules.
func (c *Controller) Restart() error {
	if err := c.services.Restart(c.cfg.VPNService); err != nil {
		return err
	}
	return c.fw.Reload()
}

// Set switches to the named server: best-effort bundle refresh, retract
// the rules for the previous server, install the new configuration and
// its rules, then restart the VPN service and reload the firewall.
func (c *Controller) Set(ctx context.Context, name string) error {
	if err := c.refresher.Refresh(ctx); err != nil {
		// The refresh is best-effort: a previously extracted config for
		// the requested server still works.
		log.Printf("bundle refresh failed, using local configs: %v", err)
	}
	if err := c.fw.Sync(firewall.ActionDelete); err != nil {
		return err
	}
	if err := c.selector.Select(name); err != nil {
		return err
	}
	if err := c.fw.Sync(firewall.ActionAdd); err != nil {
		return err
	}
	if err := c.services.Restart(c.cfg.VPNService); err != nil {
		return err
	}
	return c.fw.Reload()
}
