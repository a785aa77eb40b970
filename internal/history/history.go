// Package history keeps the append-only log of past classifications.
package history

import (
	"time"

	"github.com/google/uuid"
)

const TimeFormat = time.RFC3339

// Record is one past classification. Records are appended and never changed.
type Record struct {
	ID         string  `json:"id"`
	Timestamp  string  `json:"timestamp"`
	ClassLabel string  `json:"class_label"`
	Confidence float32 `json:"confidence"`
}

// NewRecord stamps a classification outcome with an ID and UTC timestamp.
func NewRecord(at time.Time, label string, confidence float32) Record {
	return Record{
		ID:         uuid.New().String(),
		Timestamp:  at.UTC().Format(TimeFormat),
		ClassLabel: label,
		Confidence: confidence,
	}
}

// Store persists records in insertion order.
//
// LoadAll never fails: a missing or unreadable store reads as empty.
type Store interface {
	Append(rec Record) error
	LoadAll() []Record
}

type Stats struct {
	Count             int            `json:"count"`
	AverageConfidence float64        `json:"average_confidence"`
	ByLabel           map[string]int `json:"by_label"`
}

// Aggregate summarizes records. ok is false for an empty slice, in which
// case no average is computed.
func Aggregate(records []Record) (stats Stats, ok bool) {
	if len(records) == 0 {
		return Stats{}, false
	}

	var sum float64
	byLabel := make(map[string]int)
	for _, r := range records {
		sum += float64(r.Confidence)
		byLabel[r.ClassLabel]++
	}

	return Stats{
		Count:             len(records),
		AverageConfidence: sum / float64(len(records)),
		ByLabel:           byLabel,
	}, true
}
