package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/civicmap/civicmap/internal/domain/user"
	"github.com/civicmap/civicmap/internal/middleware"
	"github.com/civicmap/civicmap/internal/services/initiatives"
)

func (h *handler) listInitiatives(w http.ResponseWriter, r *http.Request) {
	upcoming := r.URL.Query().Get("upcoming") == "true"
	list, err := h.svc.Initiatives.ListVisible(r.Context(), r.URL.Query().Get("category"), upcoming)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) createInitiative(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Location    string `json:"location"`
		Category    string `json:"category"`
		Date        string `json:"date"`
		TimeOfDay   string `json:"time_of_day"`
		ImagePath   string `json:"image_path"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ini, err := h.svc.Initiatives.Create(r.Context(), initiatives.CreateInput{
		Title:       payload.Title,
		Description: payload.Description,
		Location:    payload.Location,
		Category:    payload.Category,
		Date:        date,
		TimeOfDay:   payload.TimeOfDay,
		ImagePath:   payload.ImagePath,
		CreatorID:   middleware.UserID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ini)
}

func (h *handler) pendingInitiatives(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Initiatives.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getInitiative(w http.ResponseWriter, r *http.Request) {
	ini, err := h.svc.Initiatives.GetBySlug(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	count, err := h.svc.Initiatives.ParticipantCount(r.Context(), ini.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"initiative":   ini,
		"participants": count,
	})
}

func (h *handler) approveInitiative(w http.ResponseWriter, r *http.Request) {
	ini, err := h.svc.Initiatives.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ini)
}

func (h *handler) rejectInitiative(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	ini, err := h.svc.Initiatives.Reject(r.Context(), mux.Vars(r)["id"], payload.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ini)
}

// cancelInitiative allows the creator or an admin to withdraw an initiative.
func (h *handler) cancelInitiative(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ini, err := h.svc.Initiatives.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ctx := r.Context()
	if ini.CreatorID != middleware.UserID(ctx) && !middleware.HasRole(ctx, user.RoleAdmin) {
		writeError(w, http.StatusForbidden, errForbidden)
		return
	}

	cancelled, err := h.svc.Initiatives.Cancel(ctx, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

func (h *handler) joinInitiative(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Initiatives.Join(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) leaveInitiative(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Initiatives.Leave(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) participate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.svc.Initiatives.Participate(r.Context(), mux.Vars(r)["id"], payload.Name, payload.Email, payload.Phone)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) listComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.svc.Initiatives.Comments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *handler) addComment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.svc.Initiatives.AddComment(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()), payload.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Initiatives.DeleteComment(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
