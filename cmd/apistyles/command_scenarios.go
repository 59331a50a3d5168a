package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/picatz/apistyles"
	"github.com/picatz/apistyles/internal/compare"
	"github.com/spf13/cobra"
)

func (a *app) runner() (*compare.Runner, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	return &compare.Runner{
		Client:         client,
		ChatModel:      a.cfg.Models.Chat,
		ResponsesModel: a.cfg.Models.Responses,
		ParseModel:     a.cfg.Models.Parse,
		Limits:         a.cfg.RateLimiters(),
		Transcript:     a.transcript,
		Logger:         a.logger,
	}, nil
}

func printResult(w io.Writer, res compare.Result) error {
	if res.Err != nil {
		return fmt.Errorf("%s scenario failed in the %s style: %w", res.Scenario, res.Style, res.Err)
	}

	if res.Text != "" {
		fmt.Fprintf(w, "%s\n\n", res.Text)
	}

	b, err := json.MarshalIndent(res.Value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintf(w, "%s\n\n", b)
	fmt.Fprintf(w, "%s: %s\n", res.Style.Title(), res.Usage)
	return nil
}

func newWeatherCommand(a *app) *cobra.Command {
	style := apistyles.StyleManaged

	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Ask for the weather in Paris with a tool, then for typed packing advice",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Var(&style, "style", "API style: chat or responses")

	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		r, err := a.runner()
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), r.Weather(cmd.Context(), style))
	})
	return cmd
}

func newSummarizeCommand(a *app) *cobra.Command {
	style := apistyles.StyleManaged

	cmd := &cobra.Command{
		Use:   "summarize <repository description>",
		Short: "Extract a typed repository summary",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.Flags().Var(&style, "style", "API style: chat or responses")

	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		r, err := a.runner()
		if err != nil {
			return err
		}
		r.Summary = "Summarize repo: " + strings.Join(args, " ")
		return printResult(cmd.OutOrStdout(), r.Summarize(cmd.Context(), style))
	})
	return cmd
}

func newCompareCommand(a *app) *cobra.Command {
	var summary string

	cmd := &cobra.Command{
		Use:       "compare [scenario...]",
		Short:     "Run scenarios under both styles and compare their cost",
		ValidArgs: []string{string(compare.ScenarioWeather), string(compare.ScenarioSummary)},
		Args:      cobra.OnlyValidArgs,
	}
	cmd.Flags().StringVar(&summary, "repo", "", "repository description for the summarize scenario")

	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		r, err := a.runner()
		if err != nil {
			return err
		}
		if summary != "" {
			r.Summary = "Summarize repo: " + summary
		}

		scenarios := make([]compare.Scenario, len(args))
		for i, arg := range args {
			scenarios[i] = compare.Scenario(arg)
		}

		report, err := r.Run(cmd.Context(), scenarios...)
		if err != nil {
			return err
		}
		if err := report.Render(cmd.OutOrStdout()); err != nil {
			return err
		}
		if report.Failed() {
			return errors.New("one or more scenarios failed")
		}
		return nil
	})
	return cmd
}
