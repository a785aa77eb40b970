package model

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Brownie44l1/fruit-classifier/internal/preprocess"
)

type stubClassifier struct {
	closed bool
}

func (s *stubClassifier) Classify(t *preprocess.ImageTensor) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (s *stubClassifier) Labels() []string { return DefaultLabels }

func (s *stubClassifier) Close() { s.closed = true }

func TestLoader_LoadsOnce(t *testing.T) {
	calls := 0
	stub := &stubClassifier{}
	loader := NewLoader("stub.onnx", func() (Classifier, error) {
		calls++
		return stub, nil
	})

	for i := 0; i < 3; i++ {
		c, err := loader.Get()
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if c != stub {
			t.Fatalf("Expected cached classifier")
		}
	}
	if calls != 1 {
		t.Errorf("Expected model to be opened once, opened %d times", calls)
	}

	loader.Close()
	if !stub.closed {
		t.Error("Expected Close to release the classifier")
	}
}

func TestLoader_CachesFailure(t *testing.T) {
	calls := 0
	cause := errors.New("file is corrupt")
	loader := NewLoader("broken.onnx", func() (Classifier, error) {
		calls++
		return nil, cause
	})

	for i := 0; i < 2; i++ {
		_, err := loader.Get()
		var loadErr *ModelLoadError
		if !errors.As(err, &loadErr) {
			t.Fatalf("Expected *ModelLoadError, got %T: %v", err, err)
		}
		if loadErr.Path != "broken.onnx" || !errors.Is(err, cause) {
			t.Errorf("Unexpected load error: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("Expected a single load attempt, got %d", calls)
	}

	// Close on a failed loader is a no-op.
	loader.Close()
}

func TestNewONNXLoader_MissingModel(t *testing.T) {
	dir := t.TempDir()
	loader := NewONNXLoader(filepath.Join(dir, "missing.onnx"), filepath.Join(dir, "missing.json"), "")

	_, err := loader.Get()
	var loadErr *ModelLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected *ModelLoadError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "missing.onnx") {
		t.Errorf("Expected error to name the model path, got %v", err)
	}
}

func writeMetadata(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write metadata: %v", err)
	}
	return path
}

func TestReadMetadata(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		meta, err := ReadMetadata(writeMetadata(t, `{}`))
		if err != nil {
			t.Fatalf("ReadMetadata failed: %v", err)
		}
		if len(meta.Classes) != 3 || meta.Classes[0] != "apple" {
			t.Errorf("Expected default labels, got %v", meta.Classes)
		}
		if meta.InputName != "input" || meta.OutputName != "output" {
			t.Errorf("Unexpected tensor names %q/%q", meta.InputName, meta.OutputName)
		}
	})

	t.Run("custom classes", func(t *testing.T) {
		meta, err := ReadMetadata(writeMetadata(t, `{
			"input_shape": [1, 32, 32, 3],
			"output_shape": [1, 4],
			"classes": ["apple", "banana", "orange", "pear"],
			"input_name": "conv2d_input",
			"output_name": "dense_1"
		}`))
		if err != nil {
			t.Fatalf("ReadMetadata failed: %v", err)
		}
		if len(meta.Classes) != 4 || meta.InputName != "conv2d_input" {
			t.Errorf("Unexpected metadata %+v", meta)
		}
	})

	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `{"classes": [`},
		{"wrong input shape", `{"input_shape": [1, 3, 32, 32]}`},
		{"wrong rank", `{"input_shape": [32, 32, 3]}`},
		{"output mismatch", `{"output_shape": [1, 5]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadMetadata(writeMetadata(t, tt.content)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := ReadMetadata(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Error("Expected error, got nil")
		}
	})
}
