package main

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/owoblo/quote2move/internal/truck"
)

var trucksCmd = &cobra.Command{
	Use:   "trucks <total-cubic-feet>",
	Short: "Plan how many trucks a volume needs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("trucks"); err != nil {
			return err
		}
		total, err := strconv.ParseFloat(args[0], 64)
		if err != nil || math.IsNaN(total) || math.IsInf(total, 0) || total < 0 {
			return eris.Errorf("total cubic feet must be a non-negative number, got %q", args[0])
		}

		plan := truck.NewPlanner(cfg.Pricing.TruckCapacity).Plan(total)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSONOutput(cmd, plan)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%.0f cu ft: %d truck(s) of %.0f cu ft, exceeds single truck: %t\n",
			plan.TotalCubicFeet, plan.TrucksNeeded, plan.CapacityPerTruck, plan.ExceedsSingleTruck)
		return err
	},
}

func init() {
	trucksCmd.Flags().Bool("json", false, "print the plan as JSON")
	rootCmd.AddCommand(trucksCmd)
}
