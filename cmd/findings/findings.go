// Package findings provides operator commands for inspecting and verifying
// findings directly against the configured database.
package findings

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sitesafe/hsetrack/internal/access"
	"github.com/sitesafe/hsetrack/internal/app"
	"github.com/sitesafe/hsetrack/internal/buildinfo"
	"github.com/sitesafe/hsetrack/internal/conf"
	"github.com/sitesafe/hsetrack/internal/datastore"
	"github.com/sitesafe/hsetrack/internal/datastore/entities"
	"github.com/sitesafe/hsetrack/internal/reporting"
)

const commandTimeout = 30 * time.Second

// Command creates the findings command group.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "findings",
		Short: "Inspect and verify findings",
	}
	run := func(fn func(ctx context.Context, a *app.App) error) error {
		return withApp(settings, build, fn)
	}
	cmd.AddCommand(listCommand(run), summaryCommand(run), verifyCommand(run))
	return cmd
}

// runner opens the app for one command and closes it afterwards.
type runner func(fn func(ctx context.Context, a *app.App) error) error

func withApp(settings *conf.Settings, build *buildinfo.Context, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(settings, build)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return fn(ctx, a)
}

func listCommand(run runner) *cobra.Command {
	var (
		verifiedOnly bool
		filter       datastore.ListFilter
		status       string
		verification string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List findings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Status = entities.FindingStatus(status)
			filter.VerificationStatus = entities.VerificationStatus(verification)
			return run(func(ctx context.Context, a *app.App) error {
				var list []entities.Finding
				var err error
				if verifiedOnly {
					list, err = a.Findings.ListVerified(ctx)
				} else {
					list, err = a.Findings.List(ctx, filter)
				}
				if err != nil {
					return err
				}
				return printFindings(cmd.OutOrStdout(), list)
			})
		},
	}
	cmd.Flags().BoolVar(&verifiedOnly, "verified", false, "Only verified findings")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (Open, Closed)")
	cmd.Flags().StringVar(&verification, "verification", "", "Filter by verification status")
	cmd.Flags().StringVar(&filter.HazardCategory, "category", "", "Filter by hazard category")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum rows, 0 for all")
	return cmd
}

func printFindings(out io.Writer, list []entities.Finding) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOCCURRED\tCATEGORY\tRISK\tSTATUS\tVERIFICATION\tLOCATION")
	for i := range list {
		f := &list[i]
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.OccurredAt.Format(time.DateOnly), f.HazardCategory, f.RiskLevel,
			f.Status, f.VerificationStatus, f.Location)
	}
	return w.Flush()
}

func summaryCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show open and closed counts and the verified category trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				s, err := a.Aggregator.Summarize(ctx)
				if err != nil {
					return err
				}
				return printSummary(cmd.OutOrStdout(), s)
			})
		},
	}
}

func printSummary(out io.Writer, s reporting.Summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Open\t%d\n", s.OpenCount)
	fmt.Fprintf(w, "Closed\t%d\n", s.ClosedCount)
	fmt.Fprintln(w, "\nCATEGORY (verified)\tCOUNT")
	for _, k := range slices.Sorted(maps.Keys(s.TrendByCategory)) {
		fmt.Fprintf(w, "%s\t%d\n", k, s.TrendByCategory[k])
	}
	return w.Flush()
}

func verifyCommand(run runner) *cobra.Command {
	var (
		as       string
		decision string
		comment  string
	)
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Record a verification decision as an administrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid finding id %q", args[0])
			}
			actor := access.Actor{ID: as, Role: access.RoleAdmin}
			return run(func(ctx context.Context, a *app.App) error {
				f, err := a.Verifier.Verify(ctx, uint(id), actor, entities.VerificationStatus(decision), comment)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "finding %d %s by %s\n", f.ID, f.VerificationStatus, as)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Administrator id recorded as verifier")
	cmd.Flags().StringVar(&decision, "decision", string(entities.VerificationVerified), "verified or rejected")
	cmd.Flags().StringVar(&comment, "comment", "", "Verification comment")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}
