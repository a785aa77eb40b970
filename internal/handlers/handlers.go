package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/Brownie44l1/fruit-classifier/internal/classify"
	"github.com/Brownie44l1/fruit-classifier/internal/logger"
	"github.com/Brownie44l1/fruit-classifier/internal/model"
	"github.com/Brownie44l1/fruit-classifier/internal/preprocess"
)

type Handler struct {
	service       *classify.Service
	logger        *logger.Logger
	maxUploadSize int64
}

func NewHandler(service *classify.Service, log *logger.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		service:       service,
		logger:        log,
		maxUploadSize: maxUploadSize,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Predict scores a raw, already preprocessed tensor. Nothing is recorded.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeBodyError(w, err, "Failed to read request body")
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	expectedSize := preprocess.ImageSize * preprocess.ImageSize * preprocess.Channels
	if len(req.Image) != expectedSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Expected %d values, got %d", expectedSize, len(req.Image)))
		return
	}

	tensor := &preprocess.ImageTensor{
		Shape: [4]int{1, preprocess.ImageSize, preprocess.ImageSize, preprocess.Channels},
		Data:  req.Image,
	}

	result, err := h.service.ClassifyTensor(tensor)
	if err != nil {
		h.writeClassifyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		h.writeBodyError(w, err, "Failed to parse form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided. Use 'image' as the form field name")
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if _, ok := preprocess.SupportedFormat(ext); !ok {
		writeError(w, http.StatusBadRequest, "Unsupported file type. Supported: jpg, jpeg, png")
		return
	}

	h.logger.Info("Received file: %s, size: %d bytes", header.Filename, header.Size)

	raw, err := io.ReadAll(file)
	if err != nil {
		h.writeBodyError(w, err, "Failed to read image")
		return
	}

	outcome, err := h.service.Classify(raw, ext)
	if err != nil {
		h.writeClassifyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome.Response)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.History())
}

func (h *Handler) HistoryStats(w http.ResponseWriter, r *http.Request) {
	view := h.service.History()
	if view.Stats == nil {
		writeJSON(w, http.StatusOK, map[string]int{"count": 0})
		return
	}
	writeJSON(w, http.StatusOK, view.Stats)
}

func (h *Handler) writeBodyError(w http.ResponseWriter, err error, message string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", h.maxUploadSize))
		return
	}
	writeError(w, http.StatusBadRequest, message)
}

func (h *Handler) writeClassifyError(w http.ResponseWriter, err error) {
	var decodeErr *preprocess.DecodeError
	var loadErr *model.ModelLoadError

	switch {
	case errors.As(err, &decodeErr):
		h.logger.Warning("Rejected upload: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid image format. Supported: JPEG, PNG")
	case errors.As(err, &loadErr):
		h.logger.Error("Model unavailable: %v", err)
		writeError(w, http.StatusServiceUnavailable, "Model is not available")
	default:
		h.logger.Error("Prediction error: %v", err)
		writeError(w, http.StatusInternalServerError, "Prediction failed")
	}
}
