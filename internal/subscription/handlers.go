package subscription

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/zombor/sub-tracker/internal/domains"
	"github.com/zombor/sub-tracker/internal/scanning"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

type scanRequest struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

type cancellationInfo struct {
	URL  string `json:"url"`
	Kind string `json:"kind"` // "known" or "search"
}

type pageInfo struct {
	BaseDomain   string           `json:"baseDomain"`
	ServiceName  string           `json:"serviceName"`
	Cancellation cancellationInfo `json:"cancellation"`
}

// scanResponse always carries the page-derived fields; the verdict is absent
// when the scan itself failed, so the UI can still offer a manual save.
type scanResponse struct {
	OK      bool              `json:"ok"`
	Error   string            `json:"error,omitempty"`
	Verdict *scanning.Verdict `json:"verdict,omitempty"`
	Page    pageInfo          `json:"page"`
}

func (s *Server) pageInfoFor(rawURL, title string) pageInfo {
	host := hostOf(rawURL)
	baseDomain := domains.BaseDomain(host)

	info := pageInfo{
		BaseDomain:  baseDomain,
		ServiceName: domains.GuessServiceName(title, host),
	}
	if entry, ok := s.links.Resolve(baseDomain); ok {
		info.Cancellation = cancellationInfo{URL: entry.CancelURL, Kind: "known"}
	} else {
		info.Cancellation = cancellationInfo{URL: domains.SearchURL(baseDomain), Kind: "search"}
	}
	return info
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// handleScan classifies the page snapshot supplied for a tab and responds
// with the verdict plus everything a save dialog needs.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid scan request body")
		return
	}

	page := s.pageInfoFor(req.URL, req.Title)

	s.snapshots.Register(req.TabID, scanning.PageSnapshot{
		URL:   req.URL,
		Title: req.Title,
		HTML:  req.HTML,
	})
	defer s.snapshots.Release(req.TabID)

	verdict, err := s.scans.RequestScan(r.Context(), req.TabID)
	if err != nil {
		switch {
		case errors.Is(err, scanning.ErrNoActiveTab):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, scanning.ErrScanInProgress):
			writeJSONError(w, http.StatusConflict, err.Error())
		default:
			// Injection failures and timeouts are recoverable: the page
			// fields still let the caller save without classification data.
			slog.Warn("Scan failed", "tab_id", req.TabID, "error", err)
			writeJSON(w, http.StatusOK, scanResponse{OK: false, Error: err.Error(), Page: page})
		}
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{OK: true, Verdict: &verdict, Page: page})
}

type verdictDelivery struct {
	TabID   int              `json:"tabId"`
	Verdict scanning.Verdict `json:"verdict"`
}

// handleDeliverVerdict accepts a verdict from an out-of-process classifier
// run and routes it to the pending scan for its tab. Verdicts with no
// pending scan are discarded, so delivery is always accepted.
func (s *Server) handleDeliverVerdict(w http.ResponseWriter, r *http.Request) {
	var delivery verdictDelivery
	if err := json.NewDecoder(r.Body).Decode(&delivery); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid verdict body")
		return
	}

	s.scans.Deliver(delivery.TabID, delivery.Verdict)
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

type saveRequest struct {
	URL         string              `json:"url"`
	Title       string              `json:"title"`
	Force       bool                `json:"force"`
	ServiceName string              `json:"serviceName"`
	PageType    scanning.PageType   `json:"detectedPageType"`
	Confidence  scanning.Confidence `json:"confidence"`
	RenewalDate string              `json:"renewalDate"`
	Category    string              `json:"category"`
	Notes       string              `json:"notes"`
	PriceText   string              `json:"priceText"`
}

// handleSaveSubscription upserts a record for the page's base domain. A page
// with no derivable base domain is rejected unless the caller forces the
// save.
func (s *Server) handleSaveSubscription(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid subscription body")
		return
	}

	host := hostOf(req.URL)
	baseDomain := domains.BaseDomain(host)
	if baseDomain == "" && !req.Force {
		writeJSONError(w, http.StatusUnprocessableEntity, ErrUnknownDomain.Error())
		return
	}

	serviceName := req.ServiceName
	if serviceName == "" {
		serviceName = domains.GuessServiceName(req.Title, host)
	}
	pageType := req.PageType
	if pageType == "" {
		pageType = scanning.PageTypeUnknown
	}
	confidence := req.Confidence
	if confidence == "" {
		confidence = scanning.ConfidenceLow
	}

	result, err := s.store.Upsert(Record{
		ServiceName: serviceName,
		BaseDomain:  baseDomain,
		CurrentURL:  req.URL,
		PageType:    pageType,
		Confidence:  confidence,
		RenewalDate: req.RenewalDate,
		Category:    req.Category,
		Notes:       req.Notes,
		PriceText:   req.PriceText,
	})
	if err != nil {
		slog.Error("Error saving subscription", "base_domain", baseDomain, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if result.Mode == UpsertCreated {
		code = http.StatusCreated
	}
	writeJSON(w, code, result)
}

// handleListSubscriptions returns the filtered, sorted record list.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List()
	if err != nil {
		slog.Error("Error listing subscriptions", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	filters := Filters{
		Text:     r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
	}
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err := strconv.Atoi(raw)
		if err != nil || window < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid window")
			return
		}
		filters.WindowDays = &window
	}

	mode := SortRenewalSoon
	if raw := r.URL.Query().Get("sort"); raw != "" {
		mode = SortMode(raw)
	}

	records = s.queries.Sort(s.queries.Filter(records, filters), mode)
	writeJSON(w, http.StatusOK, records)
}

// handleUpcoming returns the renewing-soon shortlist.
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List()
	if err != nil {
		slog.Error("Error listing subscriptions", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	window := DefaultUpcomingWindowDays
	if raw := r.URL.Query().Get("window"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			window = parsed
		}
	}
	limit := DefaultUpcomingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			limit = parsed
		}
	}

	writeJSON(w, http.StatusOK, s.queries.Upcoming(records, window, limit))
}

// handleEditSubscription applies a partial edit to one record.
func (s *Server) handleEditSubscription(w http.ResponseWriter, r *http.Request) {
	var fields EditFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid edit body")
		return
	}

	record, err := s.store.Edit(r.PathValue("id"), fields)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			writeJSONError(w, http.StatusNotFound, "subscription not found")
			return
		}
		slog.Error("Error editing subscription", "id", r.PathValue("id"), "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleDeleteSubscription removes one record.
func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			writeJSONError(w, http.StatusNotFound, "subscription not found")
			return
		}
		slog.Error("Error deleting subscription", "id", r.PathValue("id"), "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleCancellation resolves where the user can cancel a tracked
// subscription: a known cancellation page when the table has one, otherwise
// a web-search fallback. Navigation itself is the caller's job.
func (s *Server) handleCancellation(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			writeJSONError(w, http.StatusNotFound, "subscription not found")
			return
		}
		slog.Error("Error loading subscription", "id", r.PathValue("id"), "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if entry, ok := s.links.Resolve(record.BaseDomain); ok {
		writeJSON(w, http.StatusOK, cancellationInfo{URL: entry.CancelURL, Kind: "known"})
		return
	}
	writeJSON(w, http.StatusOK, cancellationInfo{URL: domains.SearchURL(record.BaseDomain), Kind: "search"})
}
