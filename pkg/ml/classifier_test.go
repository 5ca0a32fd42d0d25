package ml

import (
	"testing"
)

func TestDefaultClassifierConfig(t *testing.T) {
	cfg := DefaultClassifierConfig()
	if cfg.ModelName != "ElSlay/BERT-Phishing-Email-Model" {
		t.Errorf("ModelName = %q", cfg.ModelName)
	}
	if cfg.ModelPath != "./models/bert-phishing" {
		t.Errorf("ModelPath = %q", cfg.ModelPath)
	}
}

func TestNewPhishingClassifier_EmptyConfigGetsDefaults(t *testing.T) {
	c := NewPhishingClassifier(ClassifierConfig{})
	if c.config.ModelName != "ElSlay/BERT-Phishing-Email-Model" {
		t.Errorf("ModelName = %q, want default", c.config.ModelName)
	}
}

func TestPhishingClassifier_LazyLoad(t *testing.T) {
	c := NewPhishingClassifier(DefaultClassifierConfig())
	if c.IsReady() {
		t.Error("classifier must not load the model at construction")
	}
}

func TestPhishingLabel(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"phishing", true},
		{"PHISHING", true},
		{"LABEL_1", true},
		{"spam", true},
		{"malicious", true},
		{"benign", false},
		{"label_0", false},
		{"legitimate", false},
		{"ham", false},
	}
	for _, tt := range tests {
		if got := phishingLabel(tt.label); got != tt.want {
			t.Errorf("phishingLabel(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestPhishingClassifier_CloseWithoutLoad(t *testing.T) {
	c := NewPhishingClassifier(DefaultClassifierConfig())
	if err := c.Close(); err != nil {
		t.Errorf("Close on unloaded classifier: %v", err)
	}
}
