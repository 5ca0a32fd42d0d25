package ml

import (
	"os"
	"path/filepath"
)

// ModelInfo describes one locally available model artifact.
type ModelInfo struct {
	Name    string // Model identifier
	Path    string // Local directory containing model.onnx
	License string
	Size    string // Approximate download size
}

// knownModels maps local directories to their upstream identifiers.
var knownModels = []ModelInfo{
	{Name: "ElSlay/BERT-Phishing-Email-Model", Path: "./models/bert-phishing", License: "Apache-2.0", Size: "418M"},
}

// ListAvailableModels returns every locally present model artifact: the
// PHISHGUARD_MODEL_PATH override first, then the known model directories,
// then any other subdirectory of ./models that holds a model.onnx.
func ListAvailableModels() []ModelInfo {
	var available []ModelInfo
	seen := map[string]bool{}

	add := func(info ModelInfo) {
		if seen[info.Path] {
			return
		}
		if _, err := os.Stat(filepath.Join(info.Path, "model.onnx")); err != nil {
			return
		}
		seen[info.Path] = true
		available = append(available, info)
	}

	if envPath := os.Getenv("PHISHGUARD_MODEL_PATH"); envPath != "" {
		add(ModelInfo{Name: "custom", Path: envPath, License: "Unknown", Size: "Unknown"})
	}
	for _, m := range knownModels {
		add(m)
	}

	entries, err := os.ReadDir("./models")
	if err != nil {
		return available
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		add(ModelInfo{
			Name:    entry.Name(),
			Path:    filepath.Join("./models", entry.Name()),
			License: "Unknown",
			Size:    "Unknown",
		})
	}
	return available
}
