package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/Brownie44l1/fruit-classifier/internal/preprocess"
	ort "github.com/yalue/onnxruntime_go"
)

// Session runs the fruit classifier through ONNX Runtime. Input and output
// tensors are allocated once and reused, so Classify is serialized.
type Session struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// ReadMetadata loads and validates the model's metadata file.
func ReadMetadata(metadataPath string) (Metadata, error) {
	var metadata Metadata

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if len(metadata.Classes) == 0 {
		metadata.Classes = DefaultLabels
	}
	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	if len(metadata.InputShape) == 0 {
		metadata.InputShape = []int64{1, preprocess.ImageSize, preprocess.ImageSize, preprocess.Channels}
	}
	if len(metadata.OutputShape) == 0 {
		metadata.OutputShape = []int64{1, int64(len(metadata.Classes))}
	}

	want := []int64{1, preprocess.ImageSize, preprocess.ImageSize, preprocess.Channels}
	if len(metadata.InputShape) != len(want) {
		return metadata, fmt.Errorf("input shape %v, expected %v", metadata.InputShape, want)
	}
	for i := range want {
		if metadata.InputShape[i] != want[i] {
			return metadata, fmt.Errorf("input shape %v, expected %v", metadata.InputShape, want)
		}
	}

	outputSize := int64(1)
	for _, dim := range metadata.OutputShape {
		outputSize *= dim
	}
	if outputSize != int64(len(metadata.Classes)) {
		return metadata, fmt.Errorf("output shape %v does not match %d classes", metadata.OutputShape, len(metadata.Classes))
	}

	return metadata, nil
}

// NewSession initializes the ONNX environment and opens the model. libPath
// overrides the onnxruntime shared library location when non-empty.
func NewSession(modelPath, metadataPath, libPath string) (*Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("failed to stat model: %w", err)
	}

	metadata, err := ReadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *Session) Labels() []string {
	return s.Metadata.Classes
}

// Classify runs inference and returns a copy of the output scores.
func (s *Session) Classify(t *preprocess.ImageTensor) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	input := s.inputTensor.GetData()
	if len(t.Data) != len(input) {
		return nil, fmt.Errorf("tensor has %d values, model expects %d", len(t.Data), len(input))
	}
	copy(input, t.Data)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

func (s *Session) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
