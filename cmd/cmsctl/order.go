package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"sitecms/api/internal/app"
	"sitecms/api/internal/order"
)

type orderResult struct {
	Collection  string             `json:"collection" yaml:"collection"`
	Items       []order.Item       `json:"items" yaml:"items"`
	Saving      bool               `json:"saving" yaml:"saving"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty"`
	Transaction *transactionResult `json:"transaction,omitempty" yaml:"transaction,omitempty"`
}

type transactionResult struct {
	ID       string   `json:"id" yaml:"id"`
	Status   string   `json:"status" yaml:"status"`
	Previous []string `json:"previous" yaml:"previous"`
	Proposed []string `json:"proposed" yaml:"proposed"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func toOrderResult(view app.CollectionView) orderResult {
	result := orderResult{
		Collection: view.Collection,
		Items:      view.Items,
		Saving:     view.Saving,
		Error:      view.Error,
	}
	if tx := view.Transaction; tx != nil {
		result.Transaction = &transactionResult{
			ID:       tx.ID,
			Status:   string(tx.Status),
			Previous: tx.Previous,
			Proposed: tx.Proposed,
			Error:    tx.Error,
		}
	}
	return result
}

func newOrderCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect and reorder collections",
		Long: `Inspect and reorder an ordered collection such as faqs or team.

Examples:
  # Show the current order
  cmsctl order list faqs

  # Move the first item to the third position
  cmsctl order move faqs 0 2

  # Swap the second item with its predecessor
  cmsctl order up faqs 1`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <collection>",
			Short: "Show a collection in order",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOrder(cmd, opts, http.MethodGet, args[0], "", nil)
			},
		},
		&cobra.Command{
			Use:   "move <collection> <from> <to>",
			Short: "Move the item at one index to another",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				from, err := parseIndex(args[1])
				if err != nil {
					return err
				}
				to, err := parseIndex(args[2])
				if err != nil {
					return err
				}
				body := app.MoveInput{From: &from, To: &to, Wait: true}
				return runOrder(cmd, opts, http.MethodPost, args[0], "/move", body)
			},
		},
		newStepCommand(opts, "up", "Swap an item with its predecessor"),
		newStepCommand(opts, "down", "Swap an item with its successor"),
		&cobra.Command{
			Use:   "reload <collection>",
			Short: "Discard local state and re-read the stored order",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOrder(cmd, opts, http.MethodPost, args[0], "/reload", nil)
			},
		},
		&cobra.Command{
			Use:   "dismiss <collection>",
			Short: "Clear the last save error",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOrder(cmd, opts, http.MethodPost, args[0], "/dismiss", nil)
			},
		},
	)
	return cmd
}

func newStepCommand(opts *rootOptions, direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction + " <collection> <index>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			body := app.MoveInput{Index: &index, Direction: direction, Wait: true}
			return runOrder(cmd, opts, http.MethodPost, args[0], "/move", body)
		},
	}
}

func parseIndex(raw string) (int, error) {
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("invalid index %q", raw)
	}
	return index, nil
}

func runOrder(cmd *cobra.Command, opts *rootOptions, method, collection, suffix string, body any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var view app.CollectionView
	path := "/api/collections/" + url.PathEscape(collection) + suffix
	if err := newAPIClient(opts).do(ctx, method, path, body, &view); err != nil {
		return err
	}
	result := toOrderResult(view)
	return writeResult(cmd.OutOrStdout(), opts.output, result, func(w io.Writer) error {
		return writeOrderText(w, result)
	})
}

func writeOrderText(w io.Writer, result orderResult) error {
	for i, item := range result.Items {
		if _, err := fmt.Fprintf(w, "%3d  %s\n", i, item.ID); err != nil {
			return err
		}
	}
	if tx := result.Transaction; tx != nil {
		fmt.Fprintf(w, "transaction %s %s\n", tx.ID, tx.Status)
	}
	if result.Error != "" {
		fmt.Fprintf(w, "error: %s\n", result.Error)
	}
	return nil
}
