package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"warehouse-mro/backend/models"
	"warehouse-mro/frontend/templates"
)

type AuditResponse struct {
	Entries []models.AuditEntry `json:"entries"`
	Total   int64               `json:"total"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

func (h *Auth) AuditPage(w http.ResponseWriter, r *http.Request) {
	templates.Audit(popFlashes(w, r)).Render(r.Context(), w)
}

// ListAuditEntries serves the audit trail with pagination and filters.
// The trail is append-only; pruning happens via the retention sweep.
func (h *Auth) ListAuditEntries(w http.ResponseWriter, r *http.Request) {
	q := h.DB.Preload("User").Order("created_at DESC")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	if level := r.URL.Query().Get("level"); level != "" {
		q = q.Where("level = ?", level)
	}
	if source := r.URL.Query().Get("source"); source != "" {
		q = q.Where("source = ?", source)
	}
	if search := r.URL.Query().Get("search"); search != "" {
		q = q.Where("message LIKE ? OR data LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var total int64
	q.Model(&models.AuditEntry{}).Count(&total)

	var entries []models.AuditEntry
	q.Offset((page - 1) * perPage).Limit(perPage).Find(&entries)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuditResponse{
		Entries: entries,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

func (h *Auth) AuditSources(w http.ResponseWriter, r *http.Request) {
	var sources []string
	h.DB.Model(&models.AuditEntry{}).Distinct("source").Where("source != ''").Pluck("source", &sources)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sources)
}
