package cli

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/attrib-app/attrib/internal/attribution"
	"github.com/attrib-app/attrib/internal/dataset"
	"github.com/attrib-app/attrib/internal/model"
)

var runOpts struct {
	model         string
	rule          string
	order         int
	output        string
	simulations   int
	channelCol    string
	conversionCol string
	valueCol      string
	journeyCol    string
	format        string
	reach         bool
}

var formats = []string{"table", "csv", "json"}

// stdinIsTerminal gates the interactive model prompt.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

var runCmd = &cobra.Command{
	Use:   "run <file.csv>",
	Short: "Run an attribution model on a CSV file",
	Long: `Run one attribution model over a CSV of touchpoints and print the result.

Rows are read in file order and cut into journeys after every converting row.
Use --journey-col to keep each user's touchpoints together.

When --model is omitted on a terminal you are asked to pick one.

Examples:
  attrib run journeys.csv --model Heuristic --rule linear
  attrib run journeys.csv --model Markov --order 2 --output-type attribution
  attrib run journeys.csv --model Shapley --simulations 5000 --format csv > credit.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.model, "model", "m", "", "attribution model (Heuristic, Markov, Shapley)")
	f.StringVar(&runOpts.rule, "rule", string(attribution.LastTouch), "heuristic rule (last_touch, first_touch, linear, time_decay)")
	f.IntVar(&runOpts.order, "order", model.DefaultOrder, "Markov chain order (1-5)")
	f.StringVar(&runOpts.output, "output-type", string(attribution.TransitionMatrix), "Markov output (transition_matrix, attribution)")
	f.IntVar(&runOpts.simulations, "simulations", model.DefaultSimulations, "Shapley permutations (1000-20000)")
	f.StringVar(&runOpts.channelCol, "channel-col", "channel", "channel column name")
	f.StringVar(&runOpts.conversionCol, "conversion-col", "conversion", "conversion column name")
	f.StringVar(&runOpts.valueCol, "value-col", "", "conversion value column name (optional)")
	f.StringVar(&runOpts.journeyCol, "journey-col", "", "column grouping rows into journeys (optional)")
	f.StringVarP(&runOpts.format, "format", "f", "table", "output format (table, csv, json)")
	f.BoolVar(&runOpts.reach, "reach", false, "also print per-channel reach and conversion rate")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if !slices.Contains(formats, runOpts.format) {
		return fmt.Errorf("unknown format %q (want table, csv or json)", runOpts.format)
	}

	path := args[0]
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	ds, err := dataset.Parse(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	kind := runOpts.model
	if kind == "" {
		kind = string(model.Heuristic)
		if stdinIsTerminal() {
			if kind, err = promptModel(); err != nil {
				return err
			}
		}
	}

	req, err := model.Collect(model.Signals{
		Model:         kind,
		LastModel:     kind,
		ChannelCol:    runOpts.channelCol,
		ConversionCol: runOpts.conversionCol,
		ValueCol:      runOpts.valueCol,
		JourneyCol:    runOpts.journeyCol,
		Rule:          runOpts.rule,
		Order:         runOpts.order,
		Output:        runOpts.output,
		Simulations:   runOpts.simulations,
	})
	if err != nil {
		return err
	}

	lib := &attribution.Library{
		JourneyCol: req.JourneyCol,
		Seed:       cfg.ShapleySeed,
		Workers:    cfg.ShapleyWorkers,
	}

	start := time.Now()
	result, err := model.Dispatch(cmd.Context(), lib, ds, req)
	if err != nil {
		return err
	}
	logger.Info("attribution run",
		"model", req.Kind(),
		"rows", ds.Len(),
		"channels", result.Len(),
		"duration", time.Since(start),
	)

	out := cmd.OutOrStdout()
	if runOpts.format == "table" {
		fmt.Fprintln(out, req.Kind().Title())
	}
	if err := renderResult(out, result, runOpts.format); err != nil {
		return err
	}

	if runOpts.reach {
		reach, err := lib.Reach(ds, req.ChannelCol, req.ConversionCol, req.ValueCol)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		renderReach(out, reach)
	}
	return nil
}

func promptModel() (string, error) {
	prompt := promptui.Select{
		Label: "Attribution model",
		Items: model.Kinds,
		Size:  len(model.Kinds),
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "▸ {{ . | cyan }}",
			Inactive: "  {{ . }}",
			Selected: "Model: {{ . }}",
			Details:  "{{ .Description }}",
		},
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return "", err
	}
	return string(model.Kinds[idx]), nil
}
