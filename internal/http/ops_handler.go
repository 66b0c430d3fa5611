package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/mindquiz/domain"
	"github.com/fjod/mindquiz/internal/ledger"
	"github.com/fjod/mindquiz/internal/maintenance"
	"github.com/fjod/mindquiz/internal/metrics"
	"github.com/fjod/mindquiz/internal/repository"
)

const (
	refMaxLen       = 64
	refCookieMaxAge = 7 * 24 * time.Hour
	userAgentMaxLen = 200
	analyticsWindow = 30 * 24 * time.Hour
	sitemapMaxURLs  = 200
)

// Maintenance is the subset of maintenance jobs exposed to admins.
type Maintenance interface {
	Prune(ctx context.Context, days int) (int, error)
	LatestBackup() (time.Time, bool, error)
	ListFiles(scope string) ([]maintenance.FileInfo, error)
	FilePath(scope, name string) (string, error)
}

type OpsConfig struct {
	Version     string
	Commit      string
	Environment string
	// PruneDays applies when a prune request names no days.
	PruneDays int
	// SiteURL prefixes share links in the sitemap.
	SiteURL string
}

type OpsHandler struct {
	records *repository.Records
	events  repository.EventLogInterface
	metrics *metrics.Metrics
	jobs    Maintenance
	cfg     OpsConfig
	timeout time.Duration
	now     func() time.Time
}

func NewOpsHandler(
	records *repository.Records,
	events repository.EventLogInterface,
	m *metrics.Metrics,
	jobs Maintenance,
	cfg OpsConfig,
	timeout time.Duration,
) *OpsHandler {
	return &OpsHandler{
		records: records,
		events:  events,
		metrics: m,
		jobs:    jobs,
		cfg:     cfg,
		timeout: timeout,
		now:     time.Now,
	}
}

func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": h.now().UnixMilli()})
}

func (h *OpsHandler) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.cfg.Version,
		"commit":  h.cfg.Commit,
		"go":      runtime.Version(),
		"env":     h.cfg.Environment,
		"time":    h.now().UTC().Format(time.RFC3339),
	})
}

// Share stores the referrer in a cookie and sends the visitor to the result page.
func (h *OpsHandler) Share(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("ref")
	if len(ref) > refMaxLen {
		ref = ref[:refMaxLen]
	}
	if ref != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     RefCookie,
			Value:    ref,
			Path:     "/",
			MaxAge:   int(refCookieMaxAge.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	http.Redirect(w, r, "/app/result/"+url.PathEscape(chi.URLParam(r, "id")), http.StatusFound)
}

type VitalsRequestDTO struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Rating    string  `json:"rating"`
	URL       string  `json:"url"`
	Timestamp flexInt `json:"timestamp"`
	UserAgent string  `json:"userAgent"`
}

func (h *OpsHandler) Vitals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req VitalsRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ts := int64(req.Timestamp)
	if ts == 0 {
		ts = h.now().UnixMilli()
	}
	ua := req.UserAgent
	if len(ua) > userAgentMaxLen {
		ua = ua[:userAgentMaxLen]
	}

	err := h.events.Append(ctx, repository.EventWebVitals, map[string]any{
		"name":      orDefault(req.Name, "unknown"),
		"value":     req.Value,
		"rating":    orDefault(req.Rating, "unknown"),
		"url":       orDefault(req.URL, "/"),
		"timestamp": ts,
		"userAgent": ua,
	})
	if err != nil {
		slog.Error("record vitals failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to record vitals")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *OpsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "prometheus" {
		h.metrics.Handler().ServeHTTP(w, r)
		return
	}
	snap, err := h.metrics.Snapshot()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *OpsHandler) Referrals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	now := h.now().UTC()
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"), now.Add(-analyticsWindow))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := parseDate(q.Get("to"), now)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid to")
		return
	}

	stats, err := h.records.Referrals(ctx, from, to)
	if err != nil {
		slog.Error("referral analytics failed", "error", err)
		respondError(w, http.StatusInternalServerError, "ANALYTICS_ERROR")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"period": map[string]string{
			"from": from.Format(time.RFC3339Nano),
			"to":   to.Format(time.RFC3339Nano),
		},
		"analytics": stats,
	})
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

// Logs dumps one ledger stream as JSON, or as CSV when csv is set.
func (h *OpsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tab := r.URL.Query().Get("tab")
	if !slices.Contains(ledger.Streams, tab) {
		tab = ledger.StreamOrders
	}
	rows, err := h.records.List(ctx, tab, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Query().Get("csv") != "" {
		writeCSV(w, tab, rows)
		return
	}
	if rows == nil {
		rows = []repository.Row{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"tab": tab, "rows": rows})
}

// writeCSV uses the first row's keys, sorted, as the header.
func writeCSV(w http.ResponseWriter, tab string, rows []repository.Row) {
	var keys []string
	if len(rows) > 0 {
		for k := range rows[0] {
			keys = append(keys, k)
		}
		slices.Sort(keys)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", tab+".csv"))
	cw := csv.NewWriter(w)
	_ = cw.Write(keys)
	for _, row := range rows {
		rec := make([]string, len(keys))
		for i, k := range keys {
			rec[i] = cellValue(row[k])
		}
		_ = cw.Write(rec)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("write csv failed", "tab", tab, "error", err)
	}
}

func cellValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

type StatusResponse struct {
	OrdersTotal     int     `json:"orders_total"`
	OrdersPaid      int     `json:"orders_paid"`
	OrdersCanceled  int     `json:"orders_canceled"`
	CouponsIssued   int     `json:"coupons_issued"`
	CouponsRedeemed int     `json:"coupons_redeemed"`
	LastBackup      *string `json:"last_backup"`
}

func (h *OpsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.records.List(ctx, ledger.StreamOrders, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	coupons, err := h.records.List(ctx, ledger.StreamCoupons, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	st := StatusResponse{OrdersTotal: len(orders)}
	for _, o := range orders {
		switch domain.OrderStage(o.String("stage")) {
		case domain.StagePaid:
			st.OrdersPaid++
		case domain.StageCanceled:
			st.OrdersCanceled++
		}
	}
	for _, c := range coupons {
		switch c.String("kind") {
		case domain.KindCouponIssue:
			st.CouponsIssued++
		case domain.KindCouponRedeem:
			st.CouponsRedeemed++
		}
	}
	if t, ok, err := h.jobs.LatestBackup(); err == nil && ok {
		s := t.UTC().Format(time.RFC3339Nano)
		st.LastBackup = &s
	}
	respondJSON(w, http.StatusOK, st)
}

func (h *OpsHandler) Prune(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	days := h.cfg.PruneDays
	if s := r.FormValue("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	if days <= 0 {
		days = maintenance.DefaultPruneDays
	}

	removed, err := h.jobs.Prune(ctx, days)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "days": days, "removed": removed})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

type FilesResponse struct {
	Scope string                 `json:"scope"`
	Files []maintenance.FileInfo `json:"files"`
}

func (h *OpsHandler) Files(w http.ResponseWriter, r *http.Request) {
	scope := orDefault(r.URL.Query().Get("scope"), maintenance.ScopeArchive)
	files, err := h.jobs.ListFiles(scope)
	if errors.Is(err, maintenance.ErrUnknownScope) {
		respondError(w, http.StatusBadRequest, "scope must be archive or backup")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, FilesResponse{Scope: scope, Files: files})
}

// File downloads one archive or backup file.
func (h *OpsHandler) File(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := orDefault(q.Get("scope"), maintenance.ScopeArchive)
	path, err := h.jobs.FilePath(scope, q.Get("name"))
	if err != nil {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	ChangeFreq string `xml:"changefreq"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 urlset"`
	URLs    []sitemapURL `xml:"url"`
}

// Sitemap lists share pages for the most recent paid orders.
func (h *OpsHandler) Sitemap(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	paid, err := h.records.List(ctx, ledger.StreamOrders, func(row repository.Row) bool {
		return domain.OrderStage(row.String("stage")) == domain.StagePaid
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	seen := make(map[string]bool, len(paid))
	var ids []string
	for _, row := range paid {
		id := row.String("orderId")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) > sitemapMaxURLs {
		ids = ids[len(ids)-sitemapMaxURLs:]
	}

	set := sitemapURLSet{URLs: make([]sitemapURL, 0, len(ids))}
	for _, id := range ids {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        h.cfg.SiteURL + "/r/" + url.PathEscape(id),
			ChangeFreq: "weekly",
		})
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(set); err != nil {
		slog.Error("encode sitemap", "error", err)
	}
}
