package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/attrib-app/attrib/internal/attribution"
	"github.com/attrib-app/attrib/internal/model"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List attribution models and their parameters",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"MODEL", "DESCRIPTION", "PARAMETERS"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 48},
		{Number: 3, WidthMax: 48},
	})

	for _, k := range model.Kinds {
		tw.AppendRow(table.Row{string(k), k.Description(), parameterHelp(k)})
	}
	tw.Render()
	return nil
}

func parameterHelp(k model.Kind) string {
	switch k {
	case model.Heuristic:
		return fmt.Sprintf("--rule %s (default %s)", joinValues(attribution.Rules), attribution.LastTouch)
	case model.Markov:
		return fmt.Sprintf("--order %d-%d (default %d)\n--output-type %s (default %s)",
			attribution.MinMarkovOrder, attribution.MaxMarkovOrder, model.DefaultOrder,
			joinValues(attribution.MarkovOutputs), attribution.TransitionMatrix)
	case model.Shapley:
		return fmt.Sprintf("--simulations %d-%d (default %d)",
			attribution.MinSimulations, attribution.MaxSimulations, model.DefaultSimulations)
	}
	return ""
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, "|")
}
