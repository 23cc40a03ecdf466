package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/astralux/licensing/pkg/hwid"
	"github.com/spf13/cobra"
)

func (o *cliOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout*time.Duration(o.retries+1))
}

func generateCmd(o *cliOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Issue a new license key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context(cmd)
			defer cancel()
			key, err := o.client().Generate(ctx, owner)
			if err != nil {
				return err
			}
			return o.print(cmd, map[string]string{"license_key": key}, func(p printer) {
				p.line("%s", key)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Pre-claim the license for this identity")
	return cmd
}

func claimCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <license-key> <owner-identity>",
		Short: "Attach an owner identity to a license",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context(cmd)
			defer cancel()
			if err := o.client().Claim(ctx, args[0], args[1]); err != nil {
				return err
			}
			return o.print(cmd, map[string]bool{"success": true}, func(p printer) {
				p.line("claimed %s for %s", args[0], args[1])
			})
		},
	}
}

func validateCmd(o *cliOptions) *cobra.Command {
	var (
		hardwareID  string
		thisMachine bool
	)
	cmd := &cobra.Command{
		Use:   "validate <license-key>",
		Short: "Validate a license, binding it on first use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if thisMachine {
				if hardwareID != "" {
					return errors.New("--hwid and --this-machine are exclusive")
				}
				id, err := hwid.Collector{}.Fingerprint()
				if err != nil {
					return err
				}
				hardwareID = id
			}
			ctx, cancel := o.context(cmd)
			defer cancel()
			res, err := o.client().Validate(ctx, args[0], hardwareID)
			if err != nil {
				return err
			}
			return o.print(cmd, res, func(p printer) {
				p.line("%s: %s", args[0], res.Message)
			})
		},
	}
	cmd.Flags().StringVar(&hardwareID, "hwid", "", "Hardware id to present")
	cmd.Flags().BoolVar(&thisMachine, "this-machine", false, "Present the fingerprint of this machine")
	return cmd
}

func revokeCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <license-key>",
		Short: "Permanently disable a license",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context(cmd)
			defer cancel()
			if err := o.client().Revoke(ctx, args[0]); err != nil {
				return err
			}
			return o.print(cmd, map[string]bool{"success": true}, func(p printer) {
				p.line("revoked %s", args[0])
			})
		},
	}
}

func resetHwidCmd(o *cliOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "reset-hwid [license-key]",
		Short: "Clear the hardware binding of a license",
		Long:  "Clear the hardware binding of a license named by key or by --owner. Each reset spends one of the license's resets.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			if (key == "") == (owner == "") {
				return errors.New("name the license by key or by --owner, not both")
			}
			ctx, cancel := o.context(cmd)
			defer cancel()
			remaining, err := o.client().ResetHwid(ctx, key, owner)
			if err != nil {
				return err
			}
			return o.print(cmd, map[string]int{"remaining_resets": remaining}, func(p printer) {
				p.line("hwid cleared, %d reset(s) left", remaining)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Find the license by owner identity")
	return cmd
}

func checkShareCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-share <license-key>",
		Short: "Report how many machines and addresses used a license",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context(cmd)
			defer cancel()
			report, err := o.client().CheckShare(ctx, args[0])
			if err != nil {
				return err
			}
			return o.print(cmd, report, func(p printer) { printShareReport(p, report) })
		},
	}
}

func inspectCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <license-key>",
		Short: "Show the stored record of a license",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context(cmd)
			defer cancel()
			l, err := o.client().Inspect(ctx, args[0])
			if err != nil {
				return err
			}
			return o.print(cmd, l, func(p printer) { printLicense(p, l) })
		},
	}
}

func healthCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server and its store answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.context(cmd)
			defer cancel()
			h, err := o.client().Health(ctx)
			if err != nil {
				return err
			}
			return o.print(cmd, h, func(p printer) {
				p.line("%s (server %s)", h.Status, h.Version)
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "licensectl version %s\n", Version)
		},
	}
}
