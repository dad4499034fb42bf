package main

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/owoblo/quote2move/internal/model"
	"github.com/owoblo/quote2move/internal/pipeline"
)

var detectCmd = &cobra.Command{
	Use:   "detect [photo-url...]",
	Short: "Detect inventory from room photos",
	Long:  "Classifies photos into rooms, detects items per room and validates the inventory. Photo URLs come from arguments or --photos (one per line, - for stdin).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := detectionRequestFromFlags(cmd, args)
		if err != nil {
			return err
		}
		if err := req.Validate(); err != nil {
			return err
		}

		env, err := initEnv(ctx, "detect")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Detector.Run(ctx, req)
		if err != nil {
			return err
		}
		return writeJSONOutput(cmd, res)
	},
}

func detectionRequestFromFlags(cmd *cobra.Command, args []string) (pipeline.DetectionRequest, error) {
	urls := append([]string(nil), args...)

	if path, _ := cmd.Flags().GetString("photos"); path != "" {
		var r io.Reader
		if path == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(path)
			if err != nil {
				return pipeline.DetectionRequest{}, eris.Wrapf(err, "open photo list %s", path)
			}
			defer f.Close() //nolint:errcheck
			r = f
		}
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
				urls = append(urls, line)
			}
		}
		if err := sc.Err(); err != nil {
			return pipeline.DetectionRequest{}, eris.Wrap(err, "read photo list")
		}
	}

	var pc model.PropertyContext
	flags := cmd.Flags()
	if flags.Changed("bedrooms") {
		n, _ := flags.GetInt("bedrooms")
		pc.Bedrooms = &n
	}
	if flags.Changed("bathrooms") {
		n, _ := flags.GetFloat64("bathrooms")
		pc.Bathrooms = &n
	}
	if flags.Changed("sqft") {
		n, _ := flags.GetInt("sqft")
		pc.Sqft = &n
	}
	pt, _ := flags.GetString("property-type")
	pc.PropertyType = model.PropertyType(pt)

	return pipeline.DetectionRequest{PhotoURLs: urls, PropertyContext: pc}, nil
}

// writeJSONOutput writes v as indented JSON to --out or stdout.
func writeJSONOutput(cmd *cobra.Command, v any) error {
	w := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create %s", path)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addDetectFlags(cmd *cobra.Command) {
	cmd.Flags().String("photos", "", "file with one photo URL per line (- for stdin)")
	cmd.Flags().Int("bedrooms", 0, "bedroom count")
	cmd.Flags().Float64("bathrooms", 0, "bathroom count")
	cmd.Flags().Int("sqft", 0, "floor area in square feet")
	cmd.Flags().String("property-type", "", "house, apartment, condo, townhouse, studio, office, storage or other")
	cmd.Flags().String("out", "", "write JSON result to this file instead of stdout")
}

func init() {
	addDetectFlags(detectCmd)
	rootCmd.AddCommand(detectCmd)
}
