package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrNoScores     = errors.New("no scores")
	ErrInvalidScore = errors.New("non-finite score")
)

// Decide picks the highest score. Ties go to the lowest index, and the
// confidence is the winner's own score without renormalization. NaN or
// infinite scores are rejected.
func Decide(scores []float32, labels []string) (*PredictionResult, error) {
	if len(scores) == 0 {
		return nil, ErrNoScores
	}
	if len(scores) != len(labels) {
		return nil, fmt.Errorf("got %d scores for %d labels", len(scores), len(labels))
	}

	for i, val := range scores {
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, fmt.Errorf("%w at index %d: %v", ErrInvalidScore, i, val)
		}
	}

	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores[1:] {
		if val > maxVal {
			maxVal = val
			maxIdx = i + 1
		}
	}

	raw := make([]float32, len(scores))
	copy(raw, scores)

	return &PredictionResult{
		ClassLabel: labels[maxIdx],
		Confidence: maxVal,
		RawScores:  raw,
	}, nil
}

// NewResponse renders a result the way it is shown to the user.
func NewResponse(result *PredictionResult, labels []string) *PredictionResponse {
	predictions := make(map[string]float32, len(labels))
	for i, label := range labels {
		if i < len(result.RawScores) {
			predictions[label] = result.RawScores[i]
		}
	}

	return &PredictionResponse{
		Class:             result.ClassLabel,
		DisplayClass:      DisplayLabel(result.ClassLabel),
		Confidence:        result.Confidence,
		ConfidencePercent: FormatPercent(result.Confidence),
		Predictions:       predictions,
		RawScores:         result.RawScores,
	}
}

// DisplayLabel title-cases a label: "orange" -> "Orange".
func DisplayLabel(label string) string {
	words := strings.Fields(label)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// FormatPercent formats a [0,1] confidence with two decimals: 0.7 -> "70.00%".
func FormatPercent(confidence float32) string {
	return fmt.Sprintf("%.2f%%", float64(confidence)*100)
}
