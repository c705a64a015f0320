package main

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/metalagman/evalrunner/internal/app"
	"github.com/metalagman/evalrunner/internal/config"
	"github.com/metalagman/evalrunner/internal/prompt"
	"github.com/metalagman/evalrunner/internal/task"
)

func runCmd(cfgFile *string) *cobra.Command {
	var (
		taskPath         string
		instructionsPath string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Verify the app at EVAL_TOOL_APP_URL against a task descriptor",
		Long: "Run loads the task descriptor, drives the browser agent under the configured budgets and " +
			"writes exactly one JSON document to the output channel (fd 3 unless overridden).",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := task.Load(taskPath)
			if err != nil {
				return err
			}

			v := viper.New()
			if err := v.BindPFlag("output.fd", cmd.Flags().Lookup("output-fd")); err != nil {
				return err
			}
			if err := v.BindPFlag("output.file", cmd.Flags().Lookup("output-file")); err != nil {
				return err
			}
			cfg, err := config.Load(v, *cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			instructions, err := loadInstructions(instructionsPath)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), cfg, instructions, d)
		},
	}
	cmd.Flags().StringVar(&taskPath, "task", "", "path to the task descriptor (json or yaml)")
	cmd.Flags().StringVar(&instructionsPath, "instructions", "", "operating instructions override, used verbatim")
	cmd.Flags().Int("output-fd", 3, "file descriptor that receives the result document")
	cmd.Flags().String("output-file", "", "write the result document to this file instead of a descriptor")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func loadInstructions(path string) (string, error) {
	if path == "" {
		return prompt.DefaultInstructions(), nil
	}
	doc, err := prompt.LoadInstructions(path)
	if err != nil {
		return "", err
	}
	if missing := prompt.CheckConformance(doc); len(missing) > 0 {
		log.Warn().
			Str("path", path).
			Str("missing", strings.Join(missing, ", ")).
			Msg("Instructions do not mention every output field; final answers may be rejected")
	}
	return doc, nil
}
