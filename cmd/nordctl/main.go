// Command nordctl toggles an OpenVPN connection using NordVPN server
// configurations and keeps UFW allow rules synchronized with the
// selected server, acting as a simple kill-switch.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nordctl/internal/api"
	"nordctl/internal/config"
	"nordctl/internal/controller"
	"nordctl/internal/firewall"
	"nordctl/internal/servers"
	"nordctl/internal/service"
	"nordctl/internal/settings"
	"nordctl/internal/state"
	"nordctl/internal/system"
	"nordctl/internal/version"
)

// Exit codes, kept stable for scripts wrapping nordctl.
const (
	exitUsage         = 1   // unknown subcommand
	exitMissingName   = 2   // set without a server name
	exitNoServer      = 5   // start without a configured server
	exitInternal      = 10  // programmer error, not user error
	exitNotPrivileged = 100 // privileged subcommand without root
	exitNoAction      = 255 // no subcommand given
)

// exitError carries a specific exit code through cobra's error path.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string {
	return e.message
}

var configPath string

// isRoot reports effective-root privilege; tests substitute it.
var isRoot = system.IsRoot

func main() {
	log.SetFlags(0)

	if err := newRootCmd().Execute(); err != nil {
		code, message := exitCodeFor(err)
		if message != "" {
			fmt.Fprintln(os.Stderr, message)
		}
		os.Exit(code)
	}
}

// exitCodeFor maps an error from the command tree to the process exit
// code and the message to print for it.
func exitCodeFor(err error) (int, string) {
	var coded *exitError
	switch {
	case errors.As(err, &coded):
		return coded.code, coded.message
	case errors.Is(err, controller.ErrNoServerConfigured):
		return exitNoServer, "no server configured; run `nordctl set SERVER_NAME` first"
	case errors.Is(err, firewall.ErrInvalidAction):
		return exitInternal, fmt.Sprintf("internal error: %v", err)
	default:
		return exitUsage, err.Error()
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nordctl",
		Short: "NordVPN connection and firewall kill-switch controller",
		Long: `nordctl switches between NordVPN OpenVPN servers and keeps UFW
allow rules pinned to the selected server. While the VPN-specific rules
are installed, general traffic on the interface stays blocked.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &exitError{
					code:    exitUsage,
					message: fmt.Sprintf("unknown command %q for %q\n\n%s", args[0], cmd.CommandPath(), cmd.UsageString()),
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return &exitError{code: exitNoAction}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "configuration file")

	rootCmd.AddCommand(
		newStatusCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newSetCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func requireRoot(cmd *cobra.Command, args []string) error {
	if !isRoot() {
		return &exitError{
			code:    exitNotPrivileged,
			message: fmt.Sprintf("nordctl %s must be run as root", cmd.Name()),
		}
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show VPN, firewall and connectivity state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctl, cleanup, err := buildReadOnlyController(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := ctl.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("VPN service (%s):      %s\n", st.VPNService, st.VPNState)
			fmt.Printf("Firewall service (%s): %s\n", st.FirewallService, st.FirewallState)
			fmt.Printf("Tunnel interface:       %s\n", st.TunnelState)
			fmt.Printf("Internet reachable:     %v\n", st.Online)
			fmt.Printf("Current server:         %s\n", st.Server)
			if st.SelectedAt != "" {
				fmt.Printf("Selected at:            %s\n", st.SelectedAt)
			}
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start [SERVER_NAME]",
		Short:   "Start the VPN, optionally switching to a server first",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withController(func(ctx context.Context, ctl *controller.Controller) error {
				return ctl.Start(ctx, name)
			}, cmd)
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Stop the VPN and restore general traffic rules",
		Args:    cobra.NoArgs,
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(func(ctx context.Context, ctl *controller.Controller) error {
				return ctl.Stop()
			}, cmd)
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "restart",
		Short:   "Restart the VPN service",
		Args:    cobra.NoArgs,
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(func(ctx context.Context, ctl *controller.Controller) error {
				return ctl.Restart()
			}, cmd)
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set SERVER_NAME",
		Short: "Switch to a server and resynchronize the firewall",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return &exitError{
					code:    exitMissingName,
					message: "set requires a SERVER_NAME argument (e.g. se203)\n\n" + cmd.UsageString(),
				}
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		PreRunE: requireRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(func(ctx context.Context, ctl *controller.Controller) error {
				return ctl.Set(ctx, args[0])
			}, cmd)
		},
	}
}

func newServeCmd() *cobra.Command {
	var setPassword string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the status as a read-only JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			settingsManager := settings.NewManager(cfg.SettingsPath)
			if cmd.Flags().Changed("set-password") {
				if err := api.SetPassword(settingsManager, setPassword); err != nil {
					return err
				}
				log.Printf("API password updated")
				return nil
			}

			ctl, cleanup, err := buildReadOnlyController(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			srv := api.New(ctl, cfg.BundleDir, settingsManager)
			log.Printf("status API listening on %s", cfg.ListenAddr)
			return srv.ListenAndServe(ctx, cfg.ListenAddr)
		},
	}
	cmd.Flags().StringVar(&setPassword, "set-password", "", "set the API password and exit (empty clears it)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build metadata",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Current().String())
		},
	}
}

// withController builds the full privileged controller and runs op.
func withController(op func(context.Context, *controller.Controller) error, cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	runner := system.ExecRunner{}
	fw, err := firewall.NewSynchronizer(cfg.Interface, cfg.ActiveConfigPath, runner)
	if err != nil {
		return err
	}
	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	ctl := controller.New(
		cfg,
		service.NewManagerWithRunner(runner),
		fw,
		servers.NewRefresher(cfg.BundleURL, cfg.BundleDir, cfg.DownloadTimeout(), nil),
		servers.NewSelector(cfg.BundleDir, cfg.ActiveConfigPath, cfg.CredentialsPath, store),
		store,
		controller.NewProbe(cfg.ProbeURL, cfg.ProbeTimeout(), nil),
	)
	return op(cmd.Context(), ctl)
}

// buildReadOnlyController builds a controller for status reporting. It
// tolerates an unreadable state store so `status` works unprivileged.
func buildReadOnlyController(cfg config.Config) (*controller.Controller, func(), error) {
	cleanup := func() {}
	var selections interface {
		Current() (state.Selection, error)
	}
	store, err := state.Open(cfg.StatePath)
	if err != nil {
		log.Printf("state store unavailable: %v", err)
		selections = noSelectionStore{}
	} else {
		selections = store
		cleanup = func() { store.Close() }
	}

	ctl := controller.New(
		cfg,
		service.NewManager(),
		nil,
		nil,
		nil,
		selections,
		controller.NewProbe(cfg.ProbeURL, cfg.ProbeTimeout(), nil),
	)
	return ctl, cleanup, nil
}

type noSelectionStore struct{}

func (noSelectionStore) Current() (state.Selection, error) {
	return state.Selection{}, state.ErrNoSelection
}
