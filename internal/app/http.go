package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cardvault/api/internal/search"
	"cardvault/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	// ownerID is set by the auth middleware in front of this service; an
	// empty value means an unscoped (internal) caller
	ownerID := strings.TrimSpace(r.Header.Get("X-Owner-ID"))

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		backends := s.service.Health(ctx)
		status := http.StatusOK
		if !backends["primary"] {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"backends": backends})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		req, err := parseSearchRequest(r)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		req.OwnerID = ownerID
		payload, err := s.service.Search(r.Context(), req)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/search" {
		var body struct {
			Query       string              `json:"q"`
			Mode        string              `json:"mode"`
			Index       string              `json:"index"`
			MustHave    []string            `json:"mustHave"`
			ShouldHave  []string            `json:"shouldHave"`
			MustNotHave []string            `json:"mustNotHave"`
			Fields      []string            `json:"fields"`
			Highlight   bool                `json:"highlight"`
			Distance    int                 `json:"distance"`
			Sort        []search.SortSpec   `json:"sort"`
			Filters     []search.FilterSpec `json:"filters"`
			Limit       int                 `json:"limit"`
			Offset      int                 `json:"offset"`
			Page        int                 `json:"page"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid JSON body", nil)
			return
		}
		mode := search.Mode(body.Mode)
		if mode == "" {
			mode = search.ModeAdvanced
		}
		req := search.Request{
			RawQuery:  body.Query,
			Mode:      mode,
			Type:      search.DocumentType(body.Index),
			OwnerID:   ownerID,
			Fields:    body.Fields,
			Highlight: body.Highlight,
			Distance:  body.Distance,
			Sort:      body.Sort,
			Filters:   body.Filters,
			Page:      pagination(body.Limit, body.Offset, body.Page),
		}
		if mode == search.ModeAdvanced {
			req.Advanced = &search.AdvancedQuery{
				MustHave:    body.MustHave,
				ShouldHave:  body.ShouldHave,
				MustNotHave: body.MustNotHave,
				Q:           body.Query,
			}
		}
		payload, err := s.service.Search(r.Context(), req)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search/stats" {
		stats, err := s.service.IndexStats(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "STATS_UNAVAILABLE", "could not read index stats", nil)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/search/reindex" {
		indexed, err := s.service.Reindex(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"indexed": indexed})
		return
	}

	if s.handleCards(w, r, ownerID) {
		return
	}
	if s.handleCompanies(w, r) {
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCards(w http.ResponseWriter, r *http.Request, ownerID string) bool {
	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" || parts[1] != "cards" {
		return false
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		cards, err := s.service.ListCards(r.Context(), ownerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list cards", nil)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"cards": cards})

	case r.Method == http.MethodPost && len(parts) == 2:
		var card store.Card
		if err := decodeBody(r, &card); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid JSON body", nil)
			return true
		}
		if card.OwnerID == "" {
			card.OwnerID = ownerID
		}
		created, err := s.service.CreateCard(r.Context(), card)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusCreated, created)

	case r.Method == http.MethodGet && len(parts) == 3:
		card, err := s.service.GetCard(r.Context(), ownerID, parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, card)

	case r.Method == http.MethodPut && len(parts) == 3:
		var card store.Card
		if err := decodeBody(r, &card); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid JSON body", nil)
			return true
		}
		card.ID = parts[2]
		updated, err := s.service.UpdateCard(r.Context(), ownerID, card)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, updated)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if err := s.service.DeleteCard(r.Context(), ownerID, parts[2]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": parts[2]})

	case r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "enrich":
		card, err := s.service.EnrichCard(r.Context(), ownerID, parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, card)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
	return true
}

func (s *HTTPServer) handleCompanies(w http.ResponseWriter, r *http.Request) bool {
	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" || parts[1] != "companies" {
		return false
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		companies, err := s.service.ListCompanies(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list companies", nil)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"companies": companies})

	case r.Method == http.MethodPost && len(parts) == 2:
		var company store.Company
		if err := decodeBody(r, &company); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid JSON body", nil)
			return true
		}
		created, err := s.service.CreateCompany(r.Context(), company)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusCreated, created)

	case r.Method == http.MethodGet && len(parts) == 3:
		company, err := s.service.GetCompany(r.Context(), parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, company)

	case r.Method == http.MethodPut && len(parts) == 3:
		var company store.Company
		if err := decodeBody(r, &company); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid JSON body", nil)
			return true
		}
		company.ID = parts[2]
		updated, err := s.service.UpdateCompany(r.Context(), company)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, updated)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if err := s.service.DeleteCompany(r.Context(), parts[2]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": parts[2]})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
	return true
}

// parseSearchRequest turns query-string parameters into the typed search
// request. String parsing lives here; the search service only ever sees the
// parsed form.
func parseSearchRequest(r *http.Request) (search.Request, error) {
	values := r.URL.Query()

	req := search.Request{
		RawQuery:  values.Get("q"),
		Mode:      search.Mode(strings.TrimSpace(values.Get("mode"))),
		Type:      search.DocumentType(strings.TrimSpace(values.Get("index"))),
		Highlight: values.Get("highlight") == "true" || values.Get("highlight") == "1",
	}

	limit, err := intParam(values.Get("limit"), 0)
	if err != nil {
		return search.Request{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
	}
	offset, err := intParam(values.Get("offset"), 0)
	if err != nil {
		return search.Request{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
	}
	page, err := intParam(values.Get("page"), 0)
	if err != nil {
		return search.Request{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page must be an integer", nil)
	}
	req.Page = pagination(limit, offset, page)

	if distance, err := intParam(values.Get("distance"), 0); err == nil {
		req.Distance = distance
	} else {
		return search.Request{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "distance must be an integer", nil)
	}

	if fields := strings.TrimSpace(values.Get("fields")); fields != "" {
		req.Fields = strings.Split(fields, ",")
	}

	sortField := strings.TrimSpace(values.Get("sort"))
	if sortField == "" {
		sortField = strings.TrimSpace(values.Get("sortBy"))
	}
	if sortField != "" {
		req.Sort = []search.SortSpec{{Field: sortField, Direction: strings.TrimSpace(values.Get("order"))}}
	}

	if raw := strings.TrimSpace(values.Get("filters")); raw != "" {
		var filters []search.FilterSpec
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			return search.Request{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "filters must be a JSON array of {field, value}", nil)
		}
		req.Filters = filters
	}

	return req, nil
}

// pagination resolves the limit/offset/page triple; an explicit page wins
// over offset, offset = (page-1)*limit.
func pagination(limit, offset, page int) search.Pagination {
	if limit <= 0 {
		limit = 20
	}
	if page > 0 {
		offset = (page - 1) * limit
	}
	return search.Pagination{Limit: limit, Offset: offset}
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func mapError(err error) (int, string, string, any) {
	var domain *DomainError
	if errors.As(err, &domain) {
		return domain.Status, domain.Code, domain.Message, domain.Details
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Internal server error", nil
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Owner-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
