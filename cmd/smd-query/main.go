// cmd/smd-query/main.go

// smd-query lists the components SMD reports, without memberships. It is
// meant for checking connectivity and credentials before pointing Ansible
// at a server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bmcdonald3/smd-inventory/pkg/config"
	"github.com/bmcdonald3/smd-inventory/pkg/inventory"
	"github.com/bmcdonald3/smd-inventory/pkg/smd"
)

// Exit statuses, one per failure class.
const (
	exitUsage     = 1
	exitQuery     = 64
	exitAuth      = 65
	exitMalformed = 66
)

type options struct {
	filter   string
	insecure bool
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	status := 0
	cmd := newRootCmd(stdout, &status)
	cmd.SetArgs(append([]string{}, args...))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		if status == 0 {
			fmt.Fprintln(stderr, cmd.UsageString())
			return exitUsage
		}
	}
	return status
}

func newRootCmd(stdout io.Writer, status *int) *cobra.Command {
	opts := &options{}
	defaultFilter, _ := json.Marshal(config.DefaultFilter())

	rootCmd := &cobra.Command{
		Use:           "smd-query SERVER [ACCESS_TOKEN]",
		Short:         "List the components an SMD server reports.",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := smd.ParseFilter([]byte(opts.filter))
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}

			token := ""
			if len(args) > 1 {
				token = args[1]
			}
			var clientOpts []smd.Option
			if opts.insecure {
				clientOpts = append(clientOpts, smd.WithInsecureTLS())
			}
			client := smd.NewClient(args[0], token, clientOpts...)

			err = listComponents(cmd.Context(), client, filter, stdout)
			*status = exitStatus(err)
			return err
		},
	}
	rootCmd.Flags().StringVar(&opts.filter, "filter", string(defaultFilter), "JSON object of query filters")
	rootCmd.Flags().BoolVarP(&opts.insecure, "insecure", "k", false, "Skip TLS certificate verification")
	return rootCmd
}

func listComponents(ctx context.Context, client inventory.Fetcher, filter smd.Filter, w io.Writer) error {
	records, err := inventory.Components(ctx, client, filter)
	if err != nil {
		return err
	}
	slog.Debug("components found", "count", len(records))
	for _, rec := range records {
		fmt.Fprintf(w, "Found %s %s with NID %v\n", rec.Type(), rec.ID(), rec[inventory.FieldNID])
	}
	return nil
}

func exitStatus(err error) int {
	var (
		qerr *smd.QueryError
		ferr *inventory.FormatError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &qerr) && qerr.Unauthorized():
		return exitAuth
	case errors.As(err, &ferr):
		return exitMalformed
	default:
		return exitQuery
	}
}
