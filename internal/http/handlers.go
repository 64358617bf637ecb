package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tesouraria/internal/auth"
	"tesouraria/internal/core"
	"tesouraria/internal/report"
	"tesouraria/internal/session"
	"tesouraria/internal/tenant"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// withSession authenticates the bearer token and opens (or reuses) the
// user's session before calling next.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		uid, err := s.auth.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		sess, err := s.sessions.Open(ctx, uid)
		if errors.Is(err, tenant.ErrAmbiguousMembership) {
			slog.ErrorContext(ctx, "Ambiguous partition membership", "uid", uid, "error", err)
			writeError(w, http.StatusConflict, "user belongs to multiple partitions, contact an administrator")
			return
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to open session", "uid", uid, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to open session")
			return
		}

		next(w, r, sess)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	uid, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"uid": uid})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	token, uid, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token, "uid": uid})
}

// handleLogout releases the caller's live session. The token itself
// stays valid until it expires; a later request simply reopens.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	uid, err := s.auth.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	s.sessions.Close(uid)
	w.WriteHeader(http.StatusNoContent)
}

type entryJSON struct {
	ID            string `json:"id"`
	Date          string `json:"date"`
	Category      string `json:"category"`
	CategoryTitle string `json:"category_title"`
	Title         string `json:"title"`
	Value         string `json:"value"`
	Expense       bool   `json:"expense"`
}

func toEntryJSON(e core.Entry) entryJSON {
	return entryJSON{
		ID:            e.ID,
		Date:          e.Date.Format(time.RFC3339),
		Category:      e.Category,
		CategoryTitle: core.CategoryTitle(e.Category),
		Title:         e.Title,
		Value:         e.DisplayValue(),
		Expense:       e.IsExpense(),
	}
}

type overviewJSON struct {
	Tenant      *tenantJSON `json:"tenant"`
	Admin       bool        `json:"admin"`
	Period      string      `json:"period"`
	PeriodLabel string      `json:"period_label"`
	Entries     []entryJSON `json:"entries"`
	Totals      totalsJSON  `json:"totals"`
}

type tenantJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type totalsJSON struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Balance string `json:"balance"`
}

func toOverviewJSON(ov session.Overview) overviewJSON {
	out := overviewJSON{
		Admin:       ov.Admin,
		Period:      ov.Period.String(),
		PeriodLabel: ov.Period.Label(),
		Entries:     make([]entryJSON, 0, len(ov.Entries)),
		Totals: totalsJSON{
			Income:  ov.Totals.Income.StringFixed(2),
			Expense: ov.Totals.Expense.StringFixed(2),
			Balance: ov.Totals.Balance.StringFixed(2),
		},
	}
	if ov.HasTenant {
		out.Tenant = &tenantJSON{ID: ov.Tenant.ID, Name: ov.Tenant.Name}
	}
	for _, e := range ov.Entries {
		out.Entries = append(out.Entries, toEntryJSON(e))
	}
	return out
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, toOverviewJSON(sess.Overview()))
}

func (s *Server) handleAdvancePeriod(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req struct {
		Direction int `json:"direction"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Direction != 1 && req.Direction != -1 {
		writeError(w, http.StatusUnprocessableEntity, "direction must be 1 or -1")
		return
	}

	sess.Advance(req.Direction)
	writeJSON(w, http.StatusOK, toOverviewJSON(sess.Overview()))
}

func (s *Server) handleSetPeriod(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req struct {
		Period string `json:"period"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := core.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "period must be YYYY-MM")
		return
	}

	sess.SetPeriod(p)
	writeJSON(w, http.StatusOK, toOverviewJSON(sess.Overview()))
}

// Accepted date formats for new entries.
var requestDateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseRequestDate(s string) (time.Time, bool) {
	for _, layout := range requestDateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req struct {
		Date     string `json:"date"`
		Category string `json:"category"`
		Title    string `json:"title"`
		Value    string `json:"value"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	entry := core.Entry{
		Category: strings.TrimSpace(req.Category),
		Title:    strings.TrimSpace(req.Title),
	}
	if date, ok := parseRequestDate(req.Date); ok {
		entry.Date = date
	}
	if v, err := decimal.NewFromString(strings.TrimSpace(req.Value)); err == nil {
		entry.Value = v
	}

	added, err := sess.AddEntry(r.Context(), entry)
	if errors.Is(err, session.ErrNoTenant) {
		writeError(w, http.StatusForbidden, "user has no partition")
		return
	}
	if err != nil {
		// Validation reports every failing field in one message.
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.invalidateReport(sess, added)
	writeJSON(w, http.StatusCreated, toEntryJSON(added))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	entryID := r.PathValue("id")
	secret := r.Header.Get("X-Delete-Password")

	removed, err := sess.DeleteEntry(r.Context(), entryID, secret)
	switch {
	case errors.Is(err, session.ErrNoTenant):
		writeError(w, http.StatusForbidden, "user has no partition")
	case errors.Is(err, session.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "entry not found")
	case errors.Is(err, session.ErrDeleteNotAllowed):
		writeError(w, http.StatusForbidden, "delete not authorized")
	case err != nil:
		slog.ErrorContext(r.Context(), "Delete entry failed", "entry_id", entryID, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
	default:
		s.invalidateReport(sess, removed)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	type categoryJSON struct {
		Key     string `json:"key"`
		Title   string `json:"title"`
		Color   string `json:"color"`
		Expense bool   `json:"expense"`
	}

	out := make([]categoryJSON, 0, len(core.Categories))
	for _, key := range core.CategoryKeys() {
		cat := core.Categories[key]
		out = append(out, categoryJSON{
			Key:     key,
			Title:   cat.Title,
			Color:   cat.Color,
			Expense: cat.Expense,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) reportCacheKey(sess *session.Session) string {
	ov := sess.Overview()
	return ov.Tenant.ID + "/" + ov.Period.String()
}

// invalidateReport drops the cached reports a mutation can have made
// stale: the month the entry is dated in, which may differ from the
// month currently viewed, and the viewed month itself.
func (s *Server) invalidateReport(sess *session.Session, e core.Entry) {
	ov := sess.Overview()
	if e.DateValid() {
		s.reportCache.Delete(ov.Tenant.ID + "/" + core.CurrentPeriod(e.Date).String())
	}
	s.reportCache.Delete(s.reportCacheKey(sess))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	ov := sess.Overview()
	if !ov.HasTenant {
		writeError(w, http.StatusForbidden, "user has no partition")
		return
	}

	key := s.reportCacheKey(sess)
	pdf, found := s.reportCache.Get(key)
	if !found {
		var err error
		pdf, err = report.BuildMonthlyPDF(&report.Monthly{
			ChurchName: ov.Tenant.Name,
			Period:     ov.Period,
			Entries:    ov.Entries,
			Totals:     ov.Totals,
		})
		if err != nil {
			slog.ErrorContext(r.Context(), "Report build failed", "tenant", ov.Tenant.ID, "period", ov.Period.String(), "error", err)
			writeError(w, http.StatusInternalServerError, "report build failed")
			return
		}
		s.reportCache.Set(key, pdf)
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "relatorio-"+ov.Period.String()+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if !sess.Overview().Admin {
		writeError(w, http.StatusForbidden, "administrator only")
		return
	}

	tenants := s.resolver.Tenants()
	out := make([]tenantJSON, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, tenantJSON{ID: t.ID, Name: t.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAssignTenant(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if !sess.Overview().Admin {
		writeError(w, http.StatusForbidden, "administrator only")
		return
	}

	var req struct {
		UserID   string `json:"user_id"`
		TenantID string `json:"tenant_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.TenantID == "" {
		writeError(w, http.StatusUnprocessableEntity, "user_id and tenant_id are required")
		return
	}

	err := s.resolver.Assign(r.Context(), req.UserID, req.TenantID)
	if errors.Is(err, tenant.ErrUnknownTenant) {
		writeError(w, http.StatusUnprocessableEntity, "unknown partition")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Tenant assignment failed",
			"user_id", req.UserID, "tenant_id", req.TenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "assignment failed")
		return
	}

	// The moved user's next request reopens against the new partition.
	s.sessions.Close(req.UserID)
	w.WriteHeader(http.StatusNoContent)
}
