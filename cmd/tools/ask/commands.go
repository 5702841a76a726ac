package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github-insight/internal/app"
	"github-insight/internal/common/config"
	"github-insight/internal/common/logger"
	"github-insight/internal/common/validation"
	"github-insight/internal/intent"
	answerquestion "github-insight/internal/workers/ai-conversation/answer-question"
	"github-insight/pkg/registry"
)

// pipelineLoader assembles the pipeline for one invocation.
type pipelineLoader func(ctx context.Context, configPath string, verbose bool) (*app.App, error)

func loadPipeline(ctx context.Context, configPath string, verbose bool) (*app.App, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	// one-shot runs never join a workflow
	cfg.Camunda.Enabled = false

	log := logger.NewNoOpLogger()
	if verbose {
		log = logger.NewStructured("debug", "console")
	}
	return app.Build(ctx, cfg, log, app.Options{})
}

func newRootCommand(load pipelineLoader) *cobra.Command {
	var (
		configPath string
		intents    string
		asJSON     bool
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <username> <question>",
		Short: "Answer one question about a GitHub user",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := load(cmd.Context(), configPath, verbose)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			input := &answerquestion.Input{
				Username: args[0],
				Question: strings.Join(args[1:], " "),
			}
			if intents != "" {
				input.Intents = strings.Split(intents, ",")
			}

			result, err := pipeline.Turns.Execute(cmd.Context(), input)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), result, asJSON)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a config file (defaults to configs/config.yaml)")
	cmd.Flags().StringVar(&intents, "intents", "", "Comma-separated intents, skips classification")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response body")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	cmd.AddCommand(newIntentsCommand(), newValidateCommand())
	return cmd
}

func newIntentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "intents",
		Short: "List the intents a question can resolve to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := intent.NewCatalog()
			for _, i := range intent.All() {
				req, err := catalog.Resolve(i, ":username")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s\n", i, req.URL(""))
			}
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	var taskType string
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a job input document against its activity schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				doc []byte
				err error
			)
			if len(args) == 0 || args[0] == "-" {
				doc, err = io.ReadAll(cmd.InOrStdin())
			} else {
				doc, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			validator, err := validation.NewValidator(registry.Default())
			if err != nil {
				return err
			}
			res, err := validator.ValidateJSON(taskType, doc)
			if err != nil {
				return err
			}
			if !res.Valid {
				for _, msg := range res.GetErrorMessages() {
					fmt.Fprintln(cmd.OutOrStdout(), "✗", msg)
				}
				return fmt.Errorf("%s input is invalid", taskType)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ valid %s input\n", taskType)
			return nil
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&taskType, "task", answerquestion.TaskType, "Task type whose input schema applies ("+strings.Join(registry.Default().TaskTypes(), ", ")+")")
	return cmd
}

func render(w io.Writer, result *answerquestion.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Output())
	}

	fmt.Fprintln(w, result.Answer.Text)
	source := result.Answer.Source()
	if result.FromCache {
		source = "cache"
	}
	fmt.Fprintf(w, "\n[%s | intents: %s]\n", source, strings.Join(intent.Strings(result.Answer.Intents), ", "))
	return nil
}
