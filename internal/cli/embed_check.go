package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maraichr/creditlens/internal/config"
	"github.com/maraichr/creditlens/internal/embedding"
)

var embedCheckText string

var embedCheckCmd = &cobra.Command{
	Use:   "embed-check",
	Short: "Send one embedding request to the configured provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		embedder, err := embedding.NewEmbedder(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if embedder == nil {
			return errors.New("no embedding provider configured (set OPENROUTER_API_KEY, BEDROCK_REGION or OLLAMA_HOST)")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Model: %s\n", embedder.ModelID())
		fmt.Fprintln(out, "Sending one embedding request...")

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Pipeline.EmbeddingTimeout)
		defer cancel()
		start := time.Now()
		vecs, err := embedder.EmbedBatch(ctx, []string{embedCheckText}, embedding.InputDocument)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != 1 {
			return fmt.Errorf("expected 1 embedding, got %d", len(vecs))
		}
		fmt.Fprintf(out, "OK: dims=%d in %s\n", len(vecs[0]), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	embedCheckCmd.Flags().StringVar(&embedCheckText, "text", "Balanço patrimonial: ativo total R$ 1.000.000,00", "text to embed")
}
