// cmd/smd-inventory/main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bmcdonald3/smd-inventory/pkg/ansible"
	"github.com/bmcdonald3/smd-inventory/pkg/config"
	"github.com/bmcdonald3/smd-inventory/pkg/inventory"
	"github.com/bmcdonald3/smd-inventory/pkg/server"
	"github.com/bmcdonald3/smd-inventory/pkg/source"
)

const configEnvVar = "SMD_INVENTORY_CONFIG"

type options struct {
	configPath   string
	list         bool
	host         string
	refreshCache bool
	logLevel     string
	logJSON      bool
	addr         string
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "smd-inventory",
		Short: "Ansible dynamic inventory backed by the OpenCHAMI State Manager (SMD).",
		Long: `Queries SMD for components and their memberships and prints them as an
Ansible dynamic inventory. Hosts are named nid<NID>, grouped into prt_<partition>
and grp_<label>, and carry the merged SMD record in the smd_component variable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger(stderr, opts.logLevel, opts.logJSON)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInventory(cmd.Context(), opts, stdout)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv(configEnvVar),
		"Path to the smd_inventory YAML config (defaults to $"+configEnvVar+")")
	flags.BoolVar(&opts.refreshCache, "refresh-cache", false, "Ignore any cached inventory and query SMD")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	flags.BoolVar(&opts.logJSON, "log-json", false, "Log as JSON instead of text")

	rootCmd.Flags().BoolVar(&opts.list, "list", false, "Print the whole inventory")
	rootCmd.Flags().StringVar(&opts.host, "host", "", "Print the variables of one host")
	rootCmd.MarkFlagsMutuallyExclusive("list", "host")
	rootCmd.MarkFlagsOneRequired("list", "host")

	rootCmd.AddCommand(newServeCmd(opts))
	return rootCmd
}

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inventory over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			populate := func(ctx context.Context, target *ansible.Inventory) error {
				return source.Populate(ctx, cfg, target, source.Options{Logger: slog.Default()})
			}
			newTarget := func() *ansible.Inventory {
				inv := ansible.New(slog.Default())
				inv.TransformInvalidGroupChars = cfg.TransformInvalidGroupChars
				return inv
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(opts.addr, populate, newTarget, slog.Default()).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "Address to listen on")
	return cmd
}

func loadConfig(opts *options) (*config.Config, error) {
	if opts.configPath == "" {
		return nil, &inventory.ConfigError{Option: "config", Msg: "no config file given (use --config or $" + configEnvVar + ")"}
	}
	return config.Load(opts.configPath)
}

// runInventory implements the dynamic inventory script protocol.
func runInventory(ctx context.Context, opts *options, stdout io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target := ansible.New(slog.Default())
	target.TransformInvalidGroupChars = cfg.TransformInvalidGroupChars

	err = source.Populate(ctx, cfg, target, source.Options{
		RefreshCache: opts.refreshCache,
		Logger:       slog.Default(),
	})
	if err != nil {
		return err
	}

	if opts.host != "" {
		if err := target.WriteHost(stdout, opts.host); err != nil {
			if errors.Is(err, ansible.ErrUnknownHost) {
				// Ansible expects an empty object for hosts it does not know.
				_, err = fmt.Fprintln(stdout, "{}")
			}
			return err
		}
		return nil
	}
	return target.WriteList(stdout)
}
