package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/medreport-analyzer/internal/app"
	"github.com/medreport-analyzer/internal/domain"
	"github.com/medreport-analyzer/internal/history"
	"github.com/medreport-analyzer/internal/service"
)

type analyzeOutput struct {
	ID         string           `json:"id,omitempty"`
	Source     string           `json:"source,omitempty"`
	InputChars int              `json:"input_chars"`
	Analysis   *domain.Analysis `json:"analysis"`
}

func analyzeCmd(flags *globalFlags) *cobra.Command {
	var (
		save      bool
		heuristic bool
		source    string
	)

	cmd := &cobra.Command{
		Use:   "analyze [file|-]",
		Short: "Analyze a report file, or text on stdin, and print the analysis as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if heuristic {
				cfg.Reasoning.Provider = "none"
			}

			logger, err := flags.logger(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var opts []app.Option
			if !save {
				opts = append(opts, app.WithoutHistory())
			}
			components, err := app.New(ctx, cfg, logger, opts...)
			if err != nil {
				return err
			}
			defer components.Close()

			name := "-"
			if len(args) == 1 {
				name = args[0]
			}
			text, err := readReport(ctx, cmd.InOrStdin(), name, components.Intake, int64(cfg.Server.MaxUploadMB)*1024*1024)
			if err != nil {
				return err
			}
			if source == "" && name != "-" {
				source = filepath.Base(name)
			}

			analysis := components.Analyzer.AnalyzeReportText(ctx, text)
			rec := history.NewRecord(source, text, analysis)
			out := analyzeOutput{Source: source, InputChars: rec.InputChars, Analysis: analysis}

			if components.History != nil {
				if err := components.History.Save(ctx, rec); err != nil {
					return fmt.Errorf("saving analysis: %w", err)
				}
				out.ID = rec.ID
			}

			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "store the analysis in the history database")
	cmd.Flags().BoolVar(&heuristic, "heuristic", false, "skip the reasoning service and use the local heuristics only")
	cmd.Flags().StringVar(&source, "source", "", "label stored with the analysis (default: file name)")

	return cmd
}

// readReport returns report text from stdin ("-") or a file. Files without an
// extension are read as plain text; others go through document intake.
func readReport(ctx context.Context, stdin io.Reader, name string, intake *service.DocumentIntake, maxBytes int64) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(io.LimitReader(stdin, maxBytes+1))
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		if int64(len(data)) > maxBytes {
			return "", domain.NewAnalysisError(domain.ErrFileTooLarge, "Input is too large", "", "")
		}
		return string(data), nil
	}

	info, err := os.Stat(name)
	if err != nil {
		return "", err
	}

	if filepath.Ext(name) == "" {
		if info.Size() > maxBytes {
			return "", domain.NewAnalysisError(domain.ErrFileTooLarge, "Input is too large", name, "")
		}
		data, err := os.ReadFile(name)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	if err := service.ValidateUpload(name, "", info.Size(), maxBytes); err != nil {
		return "", err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return intake.ExtractText(ctx, name, data)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
