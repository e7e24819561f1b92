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

func newUpdateCmd() *cobra.Command {
	var hyperPath string
	var styleVectorsPath string
	var outPath string

	cmd := &cobra.Command{
		Use:   "update <container>",
		Short: "Replace a container's hyper parameters, reconciling the existing manifest",
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

			kind, data, raw, err := readContainer(args[0])
			if err != nil {
				return err
			}

			existing, err := aivm.Validate(raw)
			if err != nil {
				return err
			}

			err = existing.Manifest.EnsureFormat(kind)
			if err != nil {
				return err
			}

			meta, warnings, err := reconcile.Update(existing, hyperBytes, styleVectors)
			if err != nil {
				return err
			}

			for _, w := range warnings {
				slog.Warn("reconcile", "finding", w)
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

			slog.Info("container updated", "path", out, "warnings", len(warnings))

			return nil
		},
	}

	cmd.Flags().StringVar(&hyperPath, "hyper-parameters", "", "Replacement hyper-parameter JSON path")
	cmd.Flags().StringVar(&styleVectorsPath, "style-vectors", "", "Replacement style-vector blob path (optional)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output container path")

	return cmd
}
