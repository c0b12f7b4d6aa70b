package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/district-intel/internal/analysis"
	"github.com/sells-group/district-intel/internal/store"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Cross-dataset district reports",
	Long:  "Reports built from loaded tables: crime per capita, residential land prices and the crime-vs-price correlation.",
}

var analyzePerCapitaCmd = &cobra.Command{
	Use:   "per-capita",
	Short: "Rank districts by crime per capita",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReport(cmd, func(gw store.Gateway, opts analysis.Options) (any, func(io.Writer), error) {
			rep, err := analysis.CrimePerCapita(cmd.Context(), gw, opts)
			if err != nil {
				return nil, nil, eris.Wrap(err, "analyze per-capita")
			}
			return rep, func(w io.Writer) { formatPerCapita(w, rep) }, nil
		})
	},
}

var analyzeLandPricesCmd = &cobra.Command{
	Use:   "land-prices",
	Short: "Average residential land price per district",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReport(cmd, func(gw store.Gateway, _ analysis.Options) (any, func(io.Writer), error) {
			prices, err := analysis.LandPriceAverages(cmd.Context(), gw)
			if err != nil {
				return nil, nil, eris.Wrap(err, "analyze land-prices")
			}
			return prices, func(w io.Writer) { formatLandPrices(w, prices) }, nil
		})
	},
}

var analyzeCrimePriceCmd = &cobra.Command{
	Use:   "crime-price",
	Short: "Correlate crime per capita with land prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReport(cmd, func(gw store.Gateway, opts analysis.Options) (any, func(io.Writer), error) {
			rep, err := analysis.CrimeVsPrice(cmd.Context(), gw, opts)
			if err != nil {
				return nil, nil, eris.Wrap(err, "analyze crime-price")
			}
			return rep, func(w io.Writer) { formatCrimePrice(w, rep) }, nil
		})
	},
}

func init() {
	analyzeCmd.PersistentFlags().Bool("json", false, "print the report as JSON")
	analyzeCmd.AddCommand(analyzePerCapitaCmd)
	analyzeCmd.AddCommand(analyzeLandPricesCmd)
	analyzeCmd.AddCommand(analyzeCrimePriceCmd)
	rootCmd.AddCommand(analyzeCmd)
}

type reportFunc func(gw store.Gateway, opts analysis.Options) (any, func(io.Writer), error)

// withReport opens the store, builds a report and prints it as a table or,
// with --json, as indented JSON.
func withReport(cmd *cobra.Command, build reportFunc) error {
	opts, err := analysis.NewOptions(cfg.Analysis)
	if err != nil {
		return err
	}

	gw, err := initStore(cmd.Context())
	if err != nil {
		return err
	}
	defer gw.Close() //nolint:errcheck

	rep, format, err := build(gw, opts)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	format(os.Stdout)
	return nil
}

// formatPerCapita writes the per-capita ranking to w.
func formatPerCapita(out io.Writer, rep *analysis.PerCapitaReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tDISTRICT\tCRIMES\tPOPULATION\tPER 100K\tLABEL")
	_, _ = fmt.Fprintln(w, "----\t--------\t------\t----------\t--------\t-----")
	for _, r := range rep.Rates {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.0f\t%.0f\t%.2f\t%s\n",
			r.Rank, r.District.Name, r.TotalCrimes, r.Population, r.Rate, r.Label)
	}
	_ = w.Flush()

	if worst, ok := rep.MostDangerous(); ok {
		best, _ := rep.Safest()
		_, _ = fmt.Fprintf(out, "\nMost dangerous (per capita): %s\n", worst.District.Name)
		_, _ = fmt.Fprintf(out, "Safest (per capita): %s\n", best.District.Name)
	}
	for _, d := range rep.ZeroPopulation {
		_, _ = fmt.Fprintf(out, "skipped %s: zero population\n", d.Name)
	}
	if len(rep.Unpaired) > 0 {
		_, _ = fmt.Fprintf(out, "unpaired districts: %v\n", rep.Unpaired)
	}
}

// formatLandPrices writes the district land price averages to w.
func formatLandPrices(out io.Writer, prices []analysis.LandPrice) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DISTRICT\tAVG\tMIN\tMAX\tZONES")
	_, _ = fmt.Fprintln(w, "--------\t---\t---\t---\t-----")
	for _, p := range prices {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			p.District.Name, euros(p.Avg), euros(p.Min), euros(p.Max), p.NumZones)
	}
	_ = w.Flush()
}

// formatCrimePrice writes the crime/price comparison, the coefficient and
// the insights to w.
func formatCrimePrice(out io.Writer, rep *analysis.CrimePriceReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DISTRICT\tPER 100K\tAVG PRICE\tSAFETY")
	_, _ = fmt.Fprintln(w, "--------\t--------\t---------\t------")
	for _, r := range rep.Ranking {
		_, _ = fmt.Fprintf(w, "%s\t%.0f\t%.0f\t%s\n", r.District.Name, r.A, r.B, r.Label)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nJoined on %s: %d districts\n", rep.JoinedOn, len(rep.Pairs))
	for _, warn := range rep.Warnings {
		_, _ = fmt.Fprintf(out, "warning: %s\n", warn)
	}
	if !rep.Defined {
		_, _ = fmt.Fprintf(out, "Correlation undefined: %s\n", rep.Reason)
		return
	}
	_, _ = fmt.Fprintf(out, "Correlation coefficient: %.3f (%s)\n", rep.Coefficient, rep.Interpretation)

	if in := rep.Insights; in != nil {
		_, _ = fmt.Fprintf(out, "Safest: %s - %.0f per 100k, %.0f EUR/sqm\n", in.Safest.District.Name, in.Safest.A, in.Safest.B)
		_, _ = fmt.Fprintf(out, "Most dangerous: %s - %.0f per 100k, %.0f EUR/sqm\n",
			in.MostDangerous.District.Name, in.MostDangerous.A, in.MostDangerous.B)
		if in.PriceRatio > 0 {
			_, _ = fmt.Fprintf(out, "Price ratio: %.1fx in the safest district\n", in.PriceRatio)
		}
	}
}

func euros(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *v)
}
