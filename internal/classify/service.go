// Package classify runs the upload-to-history pipeline.
package classify

import (
	"fmt"
	"sync"
	"time"

	"github.com/Brownie44l1/fruit-classifier/internal/history"
	"github.com/Brownie44l1/fruit-classifier/internal/logger"
	"github.com/Brownie44l1/fruit-classifier/internal/model"
	"github.com/Brownie44l1/fruit-classifier/internal/preprocess"
)

// Publisher receives every record appended to history.
type Publisher interface {
	Publish(rec history.Record)
}

// ClassifierSource hands out the shared classifier. *model.Loader implements it.
type ClassifierSource interface {
	Get() (model.Classifier, error)
}

type Outcome struct {
	Result   *model.PredictionResult
	Response *model.PredictionResponse
	Record   history.Record
	Recorded bool
}

type HistoryView struct {
	Records []history.Record `json:"records"`
	Stats   *history.Stats   `json:"stats"`
}

// Service processes one classification at a time.
type Service struct {
	mu        sync.Mutex
	models    ClassifierSource
	store     history.Store
	publisher Publisher
	options   preprocess.Options
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(models ClassifierSource, store history.Store, publisher Publisher, opts preprocess.Options, log *logger.Logger) *Service {
	return &Service{
		models:    models,
		store:     store,
		publisher: publisher,
		options:   opts,
		logger:    log,
		now:       time.Now,
	}
}

// Classify preprocesses raw, scores it, and records the outcome. Decode
// failures come back as *preprocess.DecodeError and model failures as
// *model.ModelLoadError. A failed history write is logged but does not fail
// the classification.
func (s *Service) Classify(raw []byte, declaredFormat string) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tensor, err := preprocess.Preprocess(raw, declaredFormat, s.options)
	if err != nil {
		return nil, err
	}

	result, labels, err := s.score(tensor)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Result:   result,
		Response: model.NewResponse(result, labels),
		Record:   history.NewRecord(s.now(), result.ClassLabel, result.Confidence),
	}

	if err := s.store.Append(out.Record); err != nil {
		s.logger.Error("Failed to record prediction: %v", err)
	} else {
		out.Recorded = true
		if s.publisher != nil {
			s.publisher.Publish(out.Record)
		}
	}

	s.logger.Info("Classified %s image as %s (%s)", declaredFormat, result.ClassLabel, out.Response.ConfidencePercent)
	return out, nil
}

// ClassifyTensor scores an already preprocessed tensor without touching
// history.
func (s *Service) ClassifyTensor(tensor *preprocess.ImageTensor) (*model.PredictionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, labels, err := s.score(tensor)
	if err != nil {
		return nil, err
	}
	return model.NewResponse(result, labels), nil
}

func (s *Service) score(tensor *preprocess.ImageTensor) (*model.PredictionResult, []string, error) {
	classifier, err := s.models.Get()
	if err != nil {
		return nil, nil, err
	}

	scores, err := classifier.Classify(tensor)
	if err != nil {
		return nil, nil, fmt.Errorf("classification failed: %w", err)
	}

	labels := classifier.Labels()
	result, err := model.Decide(scores, labels)
	if err != nil {
		return nil, nil, fmt.Errorf("classification failed: %w", err)
	}
	return result, labels, nil
}

// History returns every record and, when there are any, their stats.
func (s *Service) History() HistoryView {
	records := s.store.LoadAll()
	view := HistoryView{Records: records}
	if stats, ok := history.Aggregate(records); ok {
		view.Stats = &stats
	}
	return view
}
