package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"auction-service/internal/models"
	"auction-service/internal/service"
	"auction-service/internal/store"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Apply pending schema migrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Migrate(opts.Driver, opts.Database); err != nil {
				return wrap("migration failed", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	var policy string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Close every listed auction whose end time has passed",
		Long: `Run one reconciliation pass. Running it again, or alongside the
server's own reconciler, never closes an auction twice.

Examples:
  auctionctl reconcile --db ./auctions.db --driver sqlite3
  auctionctl reconcile --policy settle --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParseExpiryPolicy(policy)
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: "invalid policy", Err: err}
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			r := service.NewReconciler(s, nil, service.ReconcilerOptions{Policy: p})
			closed, err := r.RunOnce(cmd.Context())
			if err != nil {
				return wrap("reconcile failed", err)
			}

			return opts.write(cmd.OutOrStdout(), map[string]any{"closed": closed, "policy": p}, func(w io.Writer) {
				fmt.Fprintf(w, "closed %d auction(s) with policy %s\n", closed, p)
			})
		},
	}

	cmd.Flags().StringVar(&policy, "policy", envOr("EXPIRY_POLICY", string(models.ExpiryPolicyUnsold)), "expiry policy (unsold|settle)")
	return cmd
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <auction-id>",
		Short:         "Show one auction",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			a, err := s.GetAuctionByID(cmd.Context(), id)
			if err != nil {
				return wrap("show failed", err)
			}

			return opts.write(cmd.OutOrStdout(), a, func(w io.Writer) {
				writeTable(w, []models.Auction{*a})
			})
		},
	}
}

func newListCommand(opts *RootOptions) *cobra.Command {
	var sellerID, bidderID int64

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List auctions, optionally by seller or leading bidder",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			var auctions []models.Auction
			switch {
			case sellerID > 0:
				auctions, err = s.ListAuctionsBySeller(ctx, sellerID)
			case bidderID > 0:
				auctions, err = s.ListAuctionsByBidder(ctx, bidderID)
			default:
				auctions, err = s.ListAuctions(ctx)
			}
			if err != nil {
				return wrap("list failed", err)
			}

			return opts.write(cmd.OutOrStdout(), auctions, func(w io.Writer) {
				writeTable(w, auctions)
			})
		},
	}

	cmd.Flags().Int64Var(&sellerID, "seller", 0, "only auctions of this seller")
	cmd.Flags().Int64Var(&bidderID, "bidder", 0, "only auctions this bidder leads")
	cmd.MarkFlagsMutuallyExclusive("seller", "bidder")
	return cmd
}

func newCancelCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <auction-id>",
		Short: "Remove a listed auction",
		Long: `Remove a listed auction from the ledger. Sold and unsold auctions are
history and cannot be removed. No AuctionCancelled event is published.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			auctions := service.NewAuctionService(s, nil, service.AuctionOptions{})
			a, err := auctions.Cancel(cmd.Context(), id)
			if err != nil {
				return wrap("cancel failed", err)
			}

			return opts.write(cmd.OutOrStdout(), a, func(w io.Writer) {
				fmt.Fprintf(w, "auction %d removed\n", a.ID)
			})
		},
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("invalid auction id %q", arg)}
	}
	return id, nil
}

func writeTable(w io.Writer, auctions []models.Auction) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tITEM\tSELLER\tSTATUS\tHIGHEST\tLEADER\tENDS")
	for _, a := range auctions {
		leader := "-"
		if a.LeadingBidderID != nil {
			leader = strconv.FormatInt(*a.LeadingBidderID, 10)
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%d\t%s\t%s\n",
			a.ID, a.ItemInstID, a.SellerID, a.Status, a.CurrentHighestBid, leader,
			a.EndTime.Format(time.RFC3339))
	}
	tw.Flush()
}

// Execute runs the CLI and returns the process exit code
func Execute(ctx context.Context, stderr io.Writer) int {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
