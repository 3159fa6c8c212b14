package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
)

func (h *handler) listDistricts(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Sections.ListDistricts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) listSections(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Sections.ListSections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) locate(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("lat and lng query parameters are required"))
		return
	}

	match, err := h.svc.Sections.Locate(r.Context(), lat, lng)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordSectionLookup(match.Method)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"section": match.Section,
		"method":  match.Method,
	})
}
