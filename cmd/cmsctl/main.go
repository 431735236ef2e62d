package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	apiURL  string
	output  string
	timeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "cmsctl",
		Short: "Operate the sitecms live editing API",
		Long: `cmsctl drives the sitecms API from a terminal: reorder collections,
switch the preview device, tail preview updates and manage migrations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch outputFormat(opts.output) {
			case formatText, formatJSON, formatYAML:
				return nil
			default:
				return fmt.Errorf("unsupported output format: %s", opts.output)
			}
		},
	}

	apiURL := os.Getenv("SITECMS_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8787"
	}
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", apiURL, "Base URL of the sitecms API")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format (text, json, yaml)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "Request timeout")

	cmd.AddCommand(
		newOrderCommand(opts),
		newDeviceCommand(opts),
		newPreviewCommand(),
		newMigrateCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the cmsctl version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "cmsctl version %s\n", version)
			},
		},
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
