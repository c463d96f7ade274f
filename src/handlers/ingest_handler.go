package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lynardsalingujay/lynardme-datafeed/src/config"
	"github.com/lynardsalingujay/lynardme-datafeed/src/logger"
	"github.com/lynardsalingujay/lynardme-datafeed/src/services"
	"github.com/lynardsalingujay/lynardme-datafeed/src/utils"
)

type IngestHandler struct {
	ingestService services.IngestService
}

func NewIngestHandler(service services.IngestService) *IngestHandler {
	return &IngestHandler{
		ingestService: service,
	}
}

// HandleIngest accepts one statement file per request. The uploader states
// the source in the path and the statement kind in the form; nothing is
// sniffed from the file itself.
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	if source == "" {
		utils.SendJSONError(w, "statement source is required in the path", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "source", source, "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	kind := r.FormValue("kind")
	if kind == "" {
		utils.SendJSONError(w, "statement kind is required. Use the 'kind' form field.", http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "source", source, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		logger.L.Warn("Uploaded file header reports size too large", "source", source, "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	logger.L.Info("Processing statement upload", "source", source, "kind", kind, "filename", fileHeader.Filename)
	result, err := h.ingestService.ProcessUpload(file, source, kind)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) {
			logger.L.Warn("Statement upload failed to parse", "source", source, "kind", kind, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error parsing statement file: %v", err), http.StatusBadRequest)
		} else {
			logger.L.Error("Internal error processing statement upload", "source", source, "kind", kind, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, "An internal error occurred while processing the file. Please try again later.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.L.Error("Error encoding JSON response for ingest result", "source", source, "error", err)
	}
}
