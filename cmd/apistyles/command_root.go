package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "apistyles",
		Short: "Compare the turn-based and managed OpenAI API styles",
		Long: `apistyles drives the same conversations through two API styles:

  chat       a turn-based message list, replayed with every request
  responses  managed iteration, continued with previous_response_id

and reports the requests, tokens and history each one needs.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file (default $APISTYLES_CONFIG or ./apistyles.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, for example :9090")
	flags.BoolVarP(&a.temporary, "temporary", "t", false, "keep transcripts in memory only")

	root.AddCommand(
		newChatCommand(a),
		newResponsesCommand(a),
		newWeatherCommand(a),
		newSummarizeCommand(a),
		newCompareCommand(a),
		newHistoryCommand(a),
	)

	return root
}
