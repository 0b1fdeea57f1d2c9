package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jamo/immich-gps/internal/export"
	"github.com/jamo/immich-gps/internal/immich"
	"github.com/jamo/immich-gps/internal/logging"
	"github.com/jamo/immich-gps/internal/metrics"
	"github.com/jamo/immich-gps/internal/models"
	"github.com/jamo/immich-gps/internal/period"
	"github.com/jamo/immich-gps/internal/photos"
	"go.uber.org/zap"
)

const proxyPrefix = "/api/immich-proxy"

// Service is the part of the Immich client the server uses
type Service interface {
	TimeBuckets(ctx context.Context) ([]models.TimeBucket, error)
	RefreshTimeBuckets(ctx context.Context) ([]models.TimeBucket, error)
	Forward(ctx context.Context, path, rawQuery string) (*http.Response, error)
}

// AuditSource lists the recorded pastes
type AuditSource interface {
	GetAuditEntries() ([]models.AuditEntry, error)
}

type Server struct {
	manager *photos.Manager
	service Service
	audit   AuditSource
	metrics *metrics.Metrics
	logger  *zap.Logger
	mux     *http.ServeMux
	now     func() time.Time
}

func NewServer(manager *photos.Manager, service Service, audit AuditSource, m *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		manager: manager,
		service: service,
		audit:   audit,
		metrics: m,
		logger:  logging.OrNop(logger),
		mux:     http.NewServeMux(),
		now:     time.Now,
	}

	s.handle("/api/periods", s.handleAPIPeriods)
	s.handle("/api/photos", s.handleAPIPhotos)
	s.handle("/api/stats", s.handleAPIStats)
	s.handle("/api/load", s.handleAPILoad)
	s.handle("/api/analyze", s.handleAPIAnalyze)
	s.handle("/api/suggest", s.handleAPISuggest)
	s.handle("/api/export/", s.handleAPIExport)
	s.handle("/api/actions", s.handleAPIActions)
	s.handle(proxyPrefix+"/", s.handleImmichProxy)
	if m != nil {
		s.mux.Handle("/metrics", m.Handler())
	}

	return s
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, RecoveryMiddleware(s.logger, RequestLoggerMiddleware(s.logger, h)))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleAPIPeriods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	fetch := s.service.TimeBuckets
	if r.URL.Query().Get("refresh") != "" {
		fetch = s.service.RefreshTimeBuckets
	}
	buckets, err := fetch(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, period.GroupBuckets(buckets))
}

func (s *Server) handleAPIPhotos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	if term := q.Get("q"); term != "" {
		found := s.manager.Search(term)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"photos": found,
			"total":  len(found),
		})
		return
	}

	filter, err := photos.ParseFilter(q.Get("filter"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	page := 1
	if p := q.Get("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
	}

	writeJSON(w, http.StatusOK, s.manager.Page(filter, page))
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     s.manager.Stats(),
		"period":    s.manager.Period(),
		"analyzing": s.manager.Analyzing(),
	})
}

type loadRequest struct {
	Year  string `json:"year"`
	Month string `json:"month"`
}

func (s *Server) handleAPILoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := models.ParsePeriod(req.Year, req.Month)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.manager.Load(r.Context(), p, func(pr period.Progress) {
		s.logger.Debug("load progress",
			zap.String("period", pr.Period),
			zap.Int("page", pr.Page),
			zap.Int("found", pr.TotalFound),
			zap.Int("tested", pr.TotalTested))
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period":   res.Period,
		"source":   res.Source,
		"photos":   len(res.Photos),
		"expected": res.Expected,
		"pages":    res.Pages,
		"tested":   res.Tested,
		"undated":  res.Undated,
	})
}

func (s *Server) handleAPIAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := s.manager.AnalyzeAll(r.Context(), nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
		"stats":   s.manager.Stats(),
	})
}

func (s *Server) handleAPISuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	suggestion, err := s.manager.SuggestSource(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

func (s *Server) handleAPIExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := strings.TrimPrefix(r.URL.Path, "/api/export/")
	switch format {
	case export.FormatCSV, export.FormatJSON, export.FormatKML:
	default:
		http.NotFound(w, r)
		return
	}

	now := s.now()
	p := s.manager.Period()
	var buf bytes.Buffer
	if _, err := export.Write(&buf, format, p, s.manager.Photos(), now); err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(p, format, now)+`"`)
	w.Write(buf.Bytes())
}

func (s *Server) handleAPIActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries, err := s.audit.GetAuditEntries()
	if err != nil {
		s.writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == export.FormatCSV {
		w.Header().Set("Content-Type", export.ContentType(export.FormatCSV))
		w.Header().Set("Content-Disposition",
			`attachment; filename="gps_actions_`+s.now().Format("2006-01-02")+`.csv"`)
		if _, err := export.WriteAuditCSV(w, entries); err != nil {
			s.logger.Debug("action log export interrupted", zap.Error(err))
		}
		return
	}

	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleImmichProxy forwards GET requests to Immich with the held API key
func (s *Server) handleImmichProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	immichPath := strings.TrimPrefix(r.URL.Path, proxyPrefix)
	immichPath = strings.TrimPrefix(immichPath, "/api")

	resp, err := s.service.Forward(r.Context(), immichPath, r.URL.RawQuery)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer resp.Body.Close()

	for _, key := range []string{"Content-Type", "Content-Length", "Cache-Control", "ETag", "Last-Modified"} {
		if v := resp.Header.Get(key); v != "" {
			w.Header().Set(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("proxy copy interrupted", zap.String("path", immichPath), zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var reqErr *immich.RequestError
	switch {
	case immich.IsAuthError(err):
		status = http.StatusUnauthorized
	case errors.Is(err, photos.ErrPhotoNotFound), errors.Is(err, photos.ErrNoSuggestion), errors.Is(err, export.ErrNoGPSPhotos):
		status = http.StatusNotFound
	case errors.Is(err, photos.ErrAnalysisRunning), errors.Is(err, photos.ErrLoadSuperseded):
		status = http.StatusConflict
	case errors.As(err, &reqErr), immich.IsTransient(err):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		// client went away
		return
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
