package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

func (h *handler) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Analytics.Summarize(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handler) analyticsByZone(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Analytics.ByZone(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *handler) analyticsTrends(w http.ResponseWriter, r *http.Request) {
	months, _ := strconv.Atoi(r.URL.Query().Get("months"))
	counts, err := h.svc.Analytics.Trends(r.Context(), months)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *handler) analyticsTopCategories(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	counts, err := h.svc.Analytics.TopCategories(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *handler) analyticsExport(w http.ResponseWriter, r *http.Request) {
	csvBytes, err := h.svc.Analytics.ExportCSV(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="civicmap-report.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(csvBytes)
}

// downloadReport serves the paid CSV export behind a purchase token.
func (h *handler) downloadReport(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Donations.ValidateDownload(r.Context(), mux.Vars(r)["token"]); err != nil {
		writeServiceError(w, err)
		return
	}

	csvBytes, err := h.svc.Analytics.ExportCSV(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="civicmap-report.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(csvBytes)
}
