package model

import "github.com/Brownie44l1/fruit-classifier/internal/preprocess"

// DefaultLabels is the label order the bundled fruit model was trained with.
var DefaultLabels = []string{"apple", "banana", "orange"}

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
}

// Classifier scores a preprocessed image. Scores are aligned with Labels.
type Classifier interface {
	Classify(t *preprocess.ImageTensor) ([]float32, error)
	Labels() []string
}

type PredictionResult struct {
	ClassLabel string    `json:"class_label"`
	Confidence float32   `json:"confidence"`
	RawScores  []float32 `json:"raw_scores"`
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	Class             string             `json:"class"`
	DisplayClass      string             `json:"display_class"`
	Confidence        float32            `json:"confidence"`
	ConfidencePercent string             `json:"confidence_percent"`
	Predictions       map[string]float32 `json:"predictions"`
	RawScores         []float32          `json:"raw_scores"`
}
