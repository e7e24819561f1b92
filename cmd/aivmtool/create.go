package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/example/go-aivm/internal/aivm"
	"github.com/example/go-aivm/internal/reconcile"
	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	var hyperPath string
	var styleVectorsPath string
	var archName string
	var outPath string

	cmd := &cobra.Command{
		Use:   "create <container>",
		Short: "Generate fresh metadata from hyper parameters and embed it into a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if strings.TrimSpace(hyperPath) == "" {
				return errors.New("--hyper-parameters is required")
			}

			hyperBytes, err := os.ReadFile(hyperPath)
			if err != nil {
				return fmt.Errorf("read --hyper-parameters %q: %w", hyperPath, err)
			}

			var styleVectors []byte

			if styleVectorsPath != "" {
				styleVectors, err = os.ReadFile(styleVectorsPath)
				if err != nil {
					return fmt.Errorf("read --style-vectors %q: %w", styleVectorsPath, err)
				}
			}

			kind := containerKind(args[0])

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read container %q: %w", args[0], err)
			}

			meta, err := reconcile.Generate(aivm.Architecture(archName), hyperBytes, styleVectors)
			if err != nil {
				return err
			}

			err = reconcile.Sync(meta)
			if err != nil {
				return err
			}

			updated, err := injectMetadata(kind, data, meta)
			if err != nil {
				return err
			}

			out, err := resolveOutPath(activeCfg, outPath, args[0])
			if err != nil {
				return err
			}

			err = os.WriteFile(out, updated, 0o644)
			if err != nil {
				return fmt.Errorf("write container %q: %w", out, err)
			}

			slog.Info("container created", "path", out, "format", string(kind), "speakers", len(meta.Manifest.Speakers))

			return nil
		},
	}

	cmd.Flags().StringVar(&hyperPath, "hyper-parameters", "", "Hyper-parameter JSON path")
	cmd.Flags().StringVar(&styleVectorsPath, "style-vectors", "", "Style-vector blob path")
	cmd.Flags().StringVar(&archName, "architecture", string(aivm.ArchStyleBertVITS2), "Model architecture")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output container path")

	return cmd
}
