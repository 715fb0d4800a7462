package handler

import (
	"log/slog"
	"net/http"

	"github.com/LOCAL2/itshard-items/internal/backup"
)

type BackupHandler struct {
	manager *backup.Manager
	logger  *slog.Logger
}

func NewBackupHandler(manager *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: manager, logger: logger}
}

// Run triggers an immediate export.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.Run(r.Context())
	if err != nil {
		h.logger.Error("backup run", "error", err)
		writeError(w, http.StatusBadGateway, "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// List returns completed exports, newest first.
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	results, err := h.manager.List()
	if err != nil {
		h.logger.Error("listing backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if results == nil {
		results = []backup.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

// Download streams one export by filename.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	data, err := h.manager.Open(filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.Write(data)
}
