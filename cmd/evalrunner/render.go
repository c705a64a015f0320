package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/metalagman/evalrunner/internal/report"
)

func renderCmd() *cobra.Command {
	var (
		width    int
		markdown bool
	)
	cmd := &cobra.Command{
		Use:   "render [result.json]",
		Short: "Pretty-print a result document",
		Long:  "Render reads a result document from the given file, or stdin when omitted or \"-\", and prints a report.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			var out string
			if markdown {
				out, _, err = report.Markdown(doc)
			} else {
				out, err = report.Render(doc, width)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "print markdown without terminal styling")
	return cmd
}

func readDocument(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	return data, nil
}
