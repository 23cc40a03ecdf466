package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/astralux/licensing/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var Version = "dev"

type cliOptions struct {
	serverURL   string
	adminSecret string
	json        bool
	timeout     time.Duration
	retries     int
	verbose     bool
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	rootCmd := &cobra.Command{
		Use:           "licensectl",
		Short:         "Administer the license service",
		Long:          "Issue, inspect, revoke and reset hardware-bound license keys",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				log.Logger = log.Logger.Level(zerolog.DebugLevel)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.serverURL, "server", "s", envOr("LICENSE_SERVER_URL", "http://localhost:8080"), "License server URL")
	flags.StringVar(&opts.adminSecret, "admin-secret", os.Getenv("LICENSE_ADMIN_SECRET"), "Admin secret (default $LICENSE_ADMIN_SECRET)")
	flags.BoolVar(&opts.json, "json", false, "Print JSON instead of text")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per-request timeout")
	flags.IntVar(&opts.retries, "retries", 3, "Retries on 503 and transport errors")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log retries and debug output")

	rootCmd.AddCommand(
		generateCmd(opts),
		claimCmd(opts),
		validateCmd(opts),
		revokeCmd(opts),
		resetHwidCmd(opts),
		checkShareCmd(opts),
		inspectCmd(opts),
		healthCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

func (o *cliOptions) client() *client.Client {
	return client.New(o.serverURL,
		client.WithAdminSecret(o.adminSecret),
		client.WithHTTPClient(&http.Client{Timeout: o.timeout}),
		client.WithRetrier(client.NewRetrier(250, 4000, o.retries)),
		client.WithUserAgent("licensectl/"+Version),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
