package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flyerlens/backend/config"
	"github.com/flyerlens/backend/internal/app"
	"github.com/flyerlens/backend/internal/domain"
	"github.com/flyerlens/backend/internal/infrastructure/export"
	"github.com/flyerlens/backend/internal/logging"
)

// loader builds a loaded catalog from a config file path
type loader func(ctx context.Context, cfgFile string) (*app.App, error)

func loadApp(ctx context.Context, cfgFile string) (*app.App, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	logging.Setup(cfg.Server.Environment, os.Stderr)
	return openCatalog(ctx, cfg)
}

func openCatalog(ctx context.Context, cfg *config.Config) (*app.App, error) {
	a, err := app.NewCatalogOnly(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := a.Catalog.Refresh(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newRootCmd(load loader, out io.Writer) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "flyerctl",
		Short:         "Inspect grocery flyer prices and deals",
		Long:          `flyerctl loads the flyer dataset configured for the FlyerLens backend and prints weeks, deals and price histories, or exports the full history as Parquet.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	withApp := func(run func(cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, a)
		}
	}

	rootCmd.AddCommand(
		newWeeksCmd(withApp),
		newDealsCmd(withApp),
		newHistoryCmd(withApp),
		newExportHistoryCmd(withApp),
	)
	return rootCmd
}

type appRunner func(run func(cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error

func newWeeksCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "weeks",
		Short: "List the weeks that have flyer records",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			weeks, err := a.Catalog.Weeks()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WEEK\tFROM\tTO\tITEMS")
			for _, wk := range weeks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", wk.Key, wk.Start.Format("2006-01-02"), wk.End.Format("2006-01-02"), wk.ItemCount)
			}
			return w.Flush()
		}),
	}
}

func newDealsCmd(withApp appRunner) *cobra.Command {
	var week, tier string

	cmd := &cobra.Command{
		Use:   "deals",
		Short: "List the deals of a week, best first",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			minTier, ok := domain.ParseBadgeTier(tier)
			if !ok {
				return fmt.Errorf("unknown tier %q", tier)
			}
			deals, err := a.Catalog.Deals(week, minTier)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BADGE\tITEM\tBRAND\tSTORE\tPRICE\tUNIT PRICE\tVS AVG")
			for _, d := range deals {
				unitPrice := "-"
				if d.NormalizedPrice != nil {
					unitPrice = fmt.Sprintf("%.3f %s", *d.NormalizedPrice, d.Basis)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%+.1f%%\n",
					d.Insight.BadgeLabel, d.Record.Item, d.Record.Brand, d.Record.StoreName,
					d.Record.Price(), unitPrice, d.Insight.PercentVsAverage)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&week, "week", "latest", "week key (YYYY-Wnn) or latest")
	cmd.Flags().StringVar(&tier, "tier", string(domain.BadgeGood), "minimum badge: best-ever, excellent, good or regular-high")
	return cmd
}

func newHistoryCmd(withApp appRunner) *cobra.Command {
	var sku string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the price history of one product",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			history, err := a.Catalog.History(sku)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", history.Title, history.SKU)
			fmt.Fprintf(out, "average %.3f  min %.3f  max %.3f  over %d prices\n",
				history.Stats.Average, history.Stats.Min, history.Stats.Max, history.Stats.Count)
			fmt.Fprintf(out, "ideal zone: %.2f or less\n\n", history.IdealZone)

			stores := make([]string, 0, len(history.Series))
			for store := range history.Series {
				stores = append(stores, store)
			}
			sort.Strings(stores)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STORE\tDATE\tWEEK\tPRICE\tUNIT PRICE")
			for _, store := range stores {
				for _, p := range history.Series[store] {
					fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.3f\n", store, p.Date.Format("2006-01-02"), p.Week, p.Price, p.NormalizedPrice)
				}
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&sku, "sku", "", "product key, item__brand__quantity__unit")
	_ = cmd.MarkFlagRequired("sku")
	return cmd
}

func newExportHistoryCmd(withApp appRunner) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export-history",
		Short: "Write every price record to a Parquet file",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App) error {
			if !strings.HasSuffix(outPath, ".parquet") {
				fmt.Fprintln(os.Stderr, "warning: output file does not end in .parquet")
			}
			snap, err := a.Catalog.Snapshot()
			if err != nil {
				return err
			}
			n, err := export.WriteHistoryParquet(outPath, snap.Records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", n, outPath)
			return nil
		}),
	}
	cmd.Flags().StringVar(&outPath, "out", "history.parquet", "output file")
	return cmd
}
