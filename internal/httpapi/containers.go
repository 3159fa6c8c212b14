package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/civicmap/civicmap/internal/domain/container"
	"github.com/civicmap/civicmap/internal/domain/user"
	"github.com/civicmap/civicmap/internal/middleware"
	"github.com/civicmap/civicmap/internal/services/containers"
)

func (h *handler) listContainerPoints(w http.ResponseWriter, r *http.Request) {
	points, err := h.svc.Containers.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *handler) createContainerPoint(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Address   string  `json:"address"`
		Notes     string  `json:"notes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Section responsibles may only place points inside their own section.
	if !middleware.HasRole(r.Context(), user.RoleAdmin) {
		u, err := h.svc.Users.Get(r.Context(), middleware.UserID(r.Context()))
		if err != nil {
			writeError(w, http.StatusForbidden, errForbidden)
			return
		}
		match, err := h.svc.Sections.Locate(r.Context(), payload.Latitude, payload.Longitude)
		if err != nil || !u.Moderates(&match.Section.ID) {
			writeError(w, http.StatusForbidden, errForbidden)
			return
		}
	}

	point, err := h.svc.Containers.Create(r.Context(), containers.PointInput{
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		Address:   payload.Address,
		Notes:     payload.Notes,
		CreatedBy: middleware.UserID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, point)
}

// checkContainerModeration verifies the caller may manage the point. Admins
// manage everything; section responsibles only points in their section.
func (h *handler) checkContainerModeration(r *http.Request, pointID string) error {
	u, err := h.svc.Users.Get(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		return errForbidden
	}
	point, err := h.svc.Containers.Get(r.Context(), pointID)
	if err != nil {
		return err
	}
	if !u.Moderates(point.SectionID) {
		return errForbidden
	}
	return nil
}

func (h *handler) setContainerStatus(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.checkContainerModeration(r, id); err != nil {
		if errors.Is(err, errForbidden) {
			writeError(w, http.StatusForbidden, err)
			return
		}
		writeServiceError(w, err)
		return
	}
	point, err := h.svc.Containers.SetStatus(r.Context(), id, container.Status(payload.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, point)
}

func (h *handler) reportContainerOverflow(w http.ResponseWriter, r *http.Request) {
	point, err := h.svc.Containers.ReportOverflow(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, point)
}

func (h *handler) suggestContainerPoint(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Address   string  `json:"address"`
		Notes     string  `json:"notes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sg, err := h.svc.Containers.Suggest(r.Context(), containers.SuggestionInput{
		Latitude:    payload.Latitude,
		Longitude:   payload.Longitude,
		Address:     payload.Address,
		Notes:       payload.Notes,
		SuggestedBy: middleware.UserID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sg)
}

func (h *handler) listContainerSuggestions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Containers.Suggestions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) deleteContainerPoint(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.checkContainerModeration(r, id); err != nil {
		if errors.Is(err, errForbidden) {
			writeError(w, http.StatusForbidden, err)
			return
		}
		writeServiceError(w, err)
		return
	}
	if err := h.svc.Containers.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
