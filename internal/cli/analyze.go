package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maraichr/creditlens/internal/app"
	"github.com/maraichr/creditlens/internal/config"
	"github.com/maraichr/creditlens/internal/documents"
	"github.com/maraichr/creditlens/internal/pipeline"
	"github.com/maraichr/creditlens/internal/report"
	"github.com/maraichr/creditlens/pkg/models"
)

var (
	analyzeDocs    []string
	analyzeAmount  float64
	analyzePurpose string
	analyzeFormat  string
	analyzeOffline bool
	analyzeTrace   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <cnpj>",
	Short: "Run one analysis locally and print the report",
	Long: `Run the full pipeline for a company. Documents are local text files given
with --doc path or --doc path=role (balance_sheet, income_statement, cash_flow).

The exit status is non-zero when the run ends FAILED.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := readDocuments(analyzeDocs)
		if err != nil {
			return err
		}
		req := pipeline.AnalyzeRequest{
			SubjectID: args[0],
			Documents: sources,
			Purpose:   analyzePurpose,
		}
		if cmd.Flags().Changed("amount") {
			req.RequestedAmount = &analyzeAmount
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := newLogger()
		a, err := app.Build(cmd.Context(), cfg, logger, app.Options{Offline: analyzeOffline})
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service.Analyze(cmd.Context(), req)
		if err != nil {
			return err
		}
		if err := writeState(cmd, state, analyzeFormat); err != nil {
			return err
		}
		if state.Status == models.StatusFailed {
			return fmt.Errorf("analysis failed: %s", state.Error)
		}
		return nil
	},
}

// readDocuments loads each --doc value; an optional "=role" suffix pins the role.
func readDocuments(args []string) ([]documents.Source, error) {
	sources := make([]documents.Source, 0, len(args))
	for _, arg := range args {
		path, role, _ := strings.Cut(arg, "=")
		src := documents.Source{Filename: filepath.Base(path), Role: models.DocumentRole(role)}
		if role != "" && !models.ValidRole(src.Role) {
			return nil, fmt.Errorf("document %s: unknown role %q", path, role)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		src.Text = string(data)
		sources = append(sources, src)
	}
	if err := documents.Validate(sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func writeState(cmd *cobra.Command, state *models.RunState, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	case "html":
		page, err := report.HTML(state)
		if err != nil {
			return err
		}
		_, err = out.Write(page)
		return err
	case "markdown", "md":
		_, err := fmt.Fprint(out, report.Markdown(state, report.Options{Trace: analyzeTrace}))
		return err
	default:
		return fmt.Errorf("unknown format %q (want markdown, json or html)", format)
	}
}

func init() {
	analyzeCmd.Flags().StringArrayVarP(&analyzeDocs, "doc", "d", nil, "document file, optionally path=role (repeatable)")
	analyzeCmd.Flags().Float64Var(&analyzeAmount, "amount", 0, "requested credit amount in BRL")
	analyzeCmd.Flags().StringVar(&analyzePurpose, "purpose", "", "intended use of the credit")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "o", "markdown", "output format: markdown, json or html")
	analyzeCmd.Flags().BoolVar(&analyzeOffline, "offline", true, "skip Valkey, Postgres and MinIO")
	analyzeCmd.Flags().BoolVar(&analyzeTrace, "trace", false, "include the execution trace in markdown output")
}
