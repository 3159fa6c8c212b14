package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/civicmap/civicmap/internal/domain/inventory"
	"github.com/civicmap/civicmap/internal/domain/user"
	"github.com/civicmap/civicmap/internal/middleware"
	"github.com/civicmap/civicmap/internal/services/inventoryops"
)

func (h *handler) inventoryMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.svc.Inventory.MapItems(r.Context(), q.Get("category"), q.Get("subcategory"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) reportItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title          string   `json:"title"`
		Description    string   `json:"description"`
		Latitude       float64  `json:"latitude"`
		Longitude      float64  `json:"longitude"`
		Categories     []string `json:"categories"`
		ImagePath      string   `json:"image_path"`
		LocationSource string   `json:"location_source"`
		PhotoLatitude  *float64 `json:"photo_latitude"`
		PhotoLongitude *float64 `json:"photo_longitude"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := h.svc.Inventory.Report(r.Context(), inventoryops.ReportInput{
		Title:          payload.Title,
		Description:    payload.Description,
		Latitude:       payload.Latitude,
		Longitude:      payload.Longitude,
		CategoryCodes:  payload.Categories,
		ImagePath:      payload.ImagePath,
		LocationSource: payload.LocationSource,
		PhotoLatitude:  payload.PhotoLatitude,
		PhotoLongitude: payload.PhotoLongitude,
		ReporterID:     middleware.UserID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordItemReported()
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Inventory.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handler) shareItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Inventory.Share(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handler) pendingItems(w http.ResponseWriter, r *http.Request) {
	// Section responsibles only see their own section's queue.
	sectionID := ""
	if !middleware.HasRole(r.Context(), user.RoleAdmin) {
		u, err := h.svc.Users.Get(r.Context(), middleware.UserID(r.Context()))
		if err != nil || u.SectionID == nil {
			writeError(w, http.StatusForbidden, errForbidden)
			return
		}
		sectionID = *u.SectionID
	}

	items, err := h.svc.Inventory.ListPending(r.Context(), sectionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) voteImportance(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Inventory.VoteImportance(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handler) reportResolved(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Inventory.ReportResolved(r.Context(), mux.Vars(r)["id"], middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// checkItemModeration verifies the caller may moderate the item. Admins
// moderate everything; section responsibles only items in their section.
func (h *handler) checkItemModeration(r *http.Request, itemID string) error {
	u, err := h.svc.Users.Get(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		return errForbidden
	}
	item, err := h.svc.Inventory.Get(r.Context(), itemID)
	if err != nil {
		return err
	}
	if !u.Moderates(item.SectionID) {
		return errForbidden
	}
	return nil
}

func (h *handler) moderateItem(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id string) (inventory.Item, error)) {
	id := mux.Vars(r)["id"]
	if err := h.checkItemModeration(r, id); err != nil {
		if errors.Is(err, errForbidden) {
			writeError(w, http.StatusForbidden, err)
			return
		}
		writeServiceError(w, err)
		return
	}
	item, err := op(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handler) approveItem(w http.ResponseWriter, r *http.Request) {
	h.moderateItem(w, r, h.svc.Inventory.Approve)
}

func (h *handler) rejectItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	h.moderateItem(w, r, func(ctx context.Context, id string) (inventory.Item, error) {
		return h.svc.Inventory.Reject(ctx, id, payload.Reason)
	})
}

func (h *handler) resolveItem(w http.ResponseWriter, r *http.Request) {
	h.moderateItem(w, r, h.svc.Inventory.Resolve)
}

func (h *handler) removeItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Inventory.Remove(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Inventory.Categories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}
