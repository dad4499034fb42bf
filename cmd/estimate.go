package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/owoblo/quote2move/internal/api"
	"github.com/owoblo/quote2move/internal/model"
	"github.com/owoblo/quote2move/internal/upsell"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Price a move from an inventory and trip details",
	Long:  "Reads an estimate request (the POST /v1/estimates body) from --file or stdin and prints the estimate with its upsells.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		req, err := readEstimateRequest(cmd)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "estimate")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Estimator.Estimate(ctx, req.ToEstimate())
		if err != nil {
			return err
		}
		ups := env.Upsells.Build(upsell.Input{Detections: res.Volume.Detections, Estimate: res.Estimate})
		ups = upsell.ApplySelections(ups, req.PreviousUpsells)

		out := api.EstimateResponse{
			RunID:     res.RunID,
			Volume:    res.Volume,
			TruckPlan: res.TruckPlan,
			Estimate:  res.Estimate,
			Trip:      res.Trip,
			Upsells:   ups,
			Warnings:  res.Warnings,
			Cached:    res.Cached,
		}
		if summary, _ := cmd.Flags().GetBool("summary"); summary {
			formatEstimateSummary(cmd.OutOrStdout(), out)
			return nil
		}
		return writeJSONOutput(cmd, out)
	},
}

func readEstimateRequest(cmd *cobra.Command) (api.EstimateRequest, error) {
	var r io.Reader = cmd.InOrStdin()
	if path, _ := cmd.Flags().GetString("file"); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return api.EstimateRequest{}, eris.Wrapf(err, "open %s", path)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	var req api.EstimateRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return api.EstimateRequest{}, eris.Wrap(err, "decode estimate request")
	}
	return req, nil
}

// formatEstimateSummary writes the headline numbers of an estimate to w.
func formatEstimateSummary(out io.Writer, res api.EstimateResponse) {
	est := res.Estimate
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Volume:\t%.0f cu ft (%d items)\n", res.Volume.TotalCubicFeet, res.Volume.ItemCount)
	_, _ = fmt.Fprintf(w, "Trucks:\t%d\n", res.TruckPlan.TrucksNeeded)
	_, _ = fmt.Fprintf(w, "Crew:\t%d movers at $%.2f/h\n", est.CrewSize, est.CrewRate)
	_, _ = fmt.Fprintf(w, "Hours:\t%.2f (conservative %.2f)\n", est.HoursStandard, est.HoursConservative)
	for _, s := range est.SpecialtyItems {
		_, _ = fmt.Fprintf(w, "  %s:\t$%.2f, +%.0f min\n", s.Item, s.Surcharge, s.ExtraTime)
	}
	_, _ = fmt.Fprintf(w, "Pre-tax:\t$%.2f\n", est.PreTaxTotal)
	_, _ = fmt.Fprintf(w, "Tax (%.0f%%):\t$%.2f\n", est.TaxRate*100, est.Tax)
	_, _ = fmt.Fprintf(w, "Total:\t$%.2f\n", est.PostTaxTotal)
	if n := selectedCount(res.Upsells); n > 0 {
		_, _ = fmt.Fprintf(w, "Selected add-ons:\t%d ($%.2f)\n", n, upsell.SelectedTotal(res.Upsells))
	}
	if est.Degraded {
		_, _ = fmt.Fprintf(w, "Degraded:\t%s\n", est.DegradedReason)
	}
	for _, warn := range res.Warnings {
		_, _ = fmt.Fprintf(w, "Warning:\t%s\n", warn)
	}
	_ = w.Flush()
}

func selectedCount(list []model.Upsell) int {
	n := 0
	for _, u := range list {
		if u.Selected {
			n++
		}
	}
	return n
}

func init() {
	estimateCmd.Flags().String("file", "", "estimate request JSON file (default stdin)")
	estimateCmd.Flags().String("out", "", "write JSON result to this file instead of stdout")
	estimateCmd.Flags().Bool("summary", false, "print a short table instead of JSON")
	rootCmd.AddCommand(estimateCmd)
}
