package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"sitecms/api/internal/preview"
)

func newPreviewCommand() *cobra.Command {
	var redisURL string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Watch preview updates",
	}

	tail := &cobra.Command{
		Use:   "tail <section>",
		Short: "Render a section's preview stream as it is published",
		Long: `Subscribes to the section's preview topic on Redis and prints the
rendered content after every update, the way a preview surface would see it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if redisURL == "" {
				return fmt.Errorf("--redis or REDIS_URL is required")
			}
			opts, err := redis.ParseURL(redisURL)
			if err != nil {
				return fmt.Errorf("parse redis url: %w", err)
			}
			client := redis.NewClient(opts)
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			format, _ := cmd.Flags().GetString("output")
			return tailPreview(ctx, client, args[0], cmd.OutOrStdout(), format)
		},
	}
	tail.Flags().StringVar(&redisURL, "redis", os.Getenv("REDIS_URL"), "Redis URL the API publishes preview updates to")

	cmd.AddCommand(tail)
	return cmd
}

// tailPreview feeds the relayed topic through a Surface and writes each
// rendered state until ctx ends.
func tailPreview(ctx context.Context, client *redis.Client, sectionID string, w io.Writer, format string) error {
	local := preview.NewLocalChannel(0)
	defer local.Close()

	var mu sync.Mutex
	surface := preview.NewSurface()
	surface.OnRender(func(state map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		err := writeResult(w, format, state, func(w io.Writer) error {
			line, err := json.Marshal(state)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "%s\n", line)
			return err
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: render preview: %v\n", err)
		}
	})

	ready, done := preview.Relay(ctx, client, preview.Topic(sectionID), local)
	<-ready
	go surface.Run(ctx, local.Messages())

	err := <-done
	rendered, ignored := surface.Stats()
	fmt.Fprintf(os.Stderr, "%d updates rendered, %d messages ignored\n", rendered, ignored)
	return err
}
