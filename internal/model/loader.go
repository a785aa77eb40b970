package model

import (
	"fmt"
	"sync"
)

// ModelLoadError means the classifier could not be loaded. It is cached by
// Loader, so every later Get reports the same failure.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// OpenFunc constructs a classifier. NewSession is the production opener.
type OpenFunc func() (Classifier, error)

// Loader owns a lazily initialized classifier shared by all callers.
type Loader struct {
	path string
	open OpenFunc

	once       sync.Once
	classifier Classifier
	err        error
}

func NewLoader(path string, open OpenFunc) *Loader {
	return &Loader{path: path, open: open}
}

// NewONNXLoader loads the model at modelPath with metadata from metadataPath.
func NewONNXLoader(modelPath, metadataPath, libPath string) *Loader {
	return NewLoader(modelPath, func() (Classifier, error) {
		return NewSession(modelPath, metadataPath, libPath)
	})
}

// Get returns the classifier, loading it on first use.
func (l *Loader) Get() (Classifier, error) {
	l.once.Do(func() {
		c, err := l.open()
		if err != nil {
			l.err = &ModelLoadError{Path: l.path, Err: err}
			return
		}
		l.classifier = c
	})
	return l.classifier, l.err
}

// Close releases the classifier if it was loaded and supports closing.
func (l *Loader) Close() {
	if l.classifier == nil {
		return
	}
	if c, ok := l.classifier.(interface{ Close() }); ok {
		c.Close()
	}
}
