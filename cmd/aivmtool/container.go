package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-aivm/internal/aivm"
	"github.com/example/go-aivm/internal/config"
	"github.com/example/go-aivm/internal/onnxgraph"
	"github.com/example/go-aivm/internal/safetensors"
)

// containerKind decides which codec handles a path, by extension. AIVM
// files are safetensors containers, AIVMX files are ONNX graph containers.
func containerKind(path string) aivm.ModelFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".aivmx", ".onnx":
		return aivm.FormatONNX
	default:
		return aivm.FormatSafetensors
	}
}

func readContainer(path string) (aivm.ModelFormat, []byte, map[string]string, error) {
	kind := containerKind(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return kind, nil, nil, fmt.Errorf("read container %q: %w", path, err)
	}

	var raw map[string]string

	switch kind {
	case aivm.FormatONNX:
		raw, err = onnxgraph.ReadMetadata(data)
	default:
		raw, err = safetensors.ReadMetadata(data)
	}

	if err != nil {
		return kind, nil, nil, err
	}

	return kind, data, raw, nil
}

// injectMetadata re-validates the aggregate, stamps the container's model
// format into the manifest, and writes the metadata entries through the
// matching codec.
func injectMetadata(kind aivm.ModelFormat, data []byte, meta *aivm.Metadata) ([]byte, error) {
	meta.Manifest.ModelFormat = kind

	err := meta.Manifest.Validate()
	if err != nil {
		return nil, err
	}

	entries, err := meta.Entries()
	if err != nil {
		return nil, err
	}

	if kind == aivm.FormatONNX {
		return onnxgraph.WriteMetadata(data, entries)
	}

	return safetensors.WriteMetadata(data, entries)
}

// resolveOutPath places the output under the configured directory and
// enforces the overwrite policy.
func resolveOutPath(cfg config.Config, outFlag, inPath string) (string, error) {
	out := strings.TrimSpace(outFlag)
	if out == "" {
		out = filepath.Join(cfg.Output.Dir, filepath.Base(inPath))
	}

	if out == inPath {
		return "", fmt.Errorf("output path %q equals the input; pass --out", out)
	}

	if !cfg.Output.Overwrite {
		_, err := os.Stat(out)
		if err == nil {
			return "", fmt.Errorf("output %q already exists (use --output-overwrite)", out)
		}
	}

	return out, nil
}
