package main

import (
	"fmt"
	"os"

	"github.com/example/go-aivm/internal/aivm"
	"github.com/example/go-aivm/internal/safetensors"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var showTensors bool

	cmd := &cobra.Command{
		Use:   "inspect <container>",
		Short: "Validate a container's metadata and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			kind, data, raw, err := readContainer(args[0])
			if err != nil {
				return err
			}

			meta, err := aivm.Validate(raw)
			if err != nil {
				return err
			}

			err = meta.Manifest.EnsureFormat(kind)
			if err != nil {
				return err
			}

			printSummary(meta)

			if showTensors && kind == aivm.FormatSafetensors {
				tensors, err := safetensors.Inventory(data)
				if err != nil {
					return err
				}

				_, _ = fmt.Fprintf(os.Stdout, "tensors: %d\n", len(tensors))
				for _, t := range tensors {
					_, _ = fmt.Fprintf(os.Stdout, "  %s %s %v\n", t.Name, t.DType, t.Shape)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showTensors, "tensors", false, "Also list the tensors declared by the container header")

	return cmd
}

func printSummary(meta *aivm.Metadata) {
	m := &meta.Manifest

	_, _ = fmt.Fprintf(os.Stdout, "name: %s\n", m.Name)
	_, _ = fmt.Fprintf(os.Stdout, "uuid: %s\n", m.UUID)
	_, _ = fmt.Fprintf(os.Stdout, "version: %s\n", m.Version)
	_, _ = fmt.Fprintf(os.Stdout, "architecture: %s\n", m.ModelArchitecture)
	_, _ = fmt.Fprintf(os.Stdout, "format: %s\n", m.ModelFormat)
	_, _ = fmt.Fprintf(os.Stdout, "style vectors: %d bytes\n", len(meta.StyleVectors))

	for _, sp := range m.Speakers {
		_, _ = fmt.Fprintf(os.Stdout, "speaker %d: %s (%s) languages=%v\n", sp.LocalID, sp.Name, sp.UUID, sp.SupportedLanguages)
		for _, st := range sp.Styles {
			_, _ = fmt.Fprintf(os.Stdout, "  style %d: %s (%d samples)\n", st.LocalID, st.Name, len(st.VoiceSamples))
		}
	}
}
