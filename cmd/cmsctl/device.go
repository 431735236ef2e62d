package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"sitecms/api/internal/preview"
)

type deviceResult struct {
	Device string `json:"device" yaml:"device"`
	Width  string `json:"width" yaml:"width"`
}

func newDeviceCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Show or switch the preview device",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Show the preview device",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDevice(cmd, opts, http.MethodGet, nil)
			},
		},
		&cobra.Command{
			Use:       "set <desktop|tablet|mobile>",
			Short:     "Switch the preview device for every open editor",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{string(preview.DeviceDesktop), string(preview.DeviceTablet), string(preview.DeviceMobile)},
			RunE: func(cmd *cobra.Command, args []string) error {
				device, err := preview.ParseDevice(args[0])
				if err != nil {
					return err
				}
				return runDevice(cmd, opts, http.MethodPut, map[string]string{"device": string(device)})
			},
		},
	)
	return cmd
}

func runDevice(cmd *cobra.Command, opts *rootOptions, method string, body any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var frame preview.Frame
	if err := newAPIClient(opts).do(ctx, method, "/api/preferences/device", body, &frame); err != nil {
		return err
	}
	result := deviceResult{Device: string(frame.Device), Width: frame.Width}
	return writeResult(cmd.OutOrStdout(), opts.output, result, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s (%s)\n", result.Device, result.Width)
		return err
	})
}
