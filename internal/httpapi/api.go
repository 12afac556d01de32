// Package httpapi is the HTTP surface of the security gateway: a router whose
// protected routes run behind the resolution, authorization, rate-limiting and
// auditing pipeline.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"compass.education/internal/audit"
	"compass.education/internal/authn"
	"compass.education/internal/config"
	"compass.education/internal/filesec"
	"compass.education/internal/obs"
	"compass.education/internal/rbac"
)

// ReadyProbe checks downstream readiness (audit database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// OwnershipChecker answers whether a user owns a stored record.
type OwnershipChecker interface {
	Owns(ctx context.Context, table, recordID, ownerColumn, userID string) (bool, error)
}

// Deps carries the wired components the API serves with.
type Deps struct {
	Resolver   *authn.Resolver
	Pipeline   *Pipeline
	Uploads    *filesec.Pipeline
	Auditor    audit.Logger
	Ownership  OwnershipChecker
	ReadyProbe ReadyProbe
	Config     config.Config
	Version    string
}

// API is the HTTP layer.
type API struct {
	router   *mux.Router
	pipeline *Pipeline
	resolver *authn.Resolver
	uploads  *filesec.Pipeline
	auditor  audit.Logger
	owns     OwnershipChecker
	probe    ReadyProbe
	cfg      config.Config
	version  string
}

// New builds the router. Protected routes are wrapped by the security
// pipeline; health, readiness and metrics stay open.
func New(d Deps) *API {
	a := &API{
		router:   mux.NewRouter(),
		pipeline: d.Pipeline,
		resolver: d.Resolver,
		uploads:  d.Uploads,
		auditor:  d.Auditor,
		owns:     d.Ownership,
		probe:    d.ReadyProbe,
		cfg:      d.Config,
		version:  d.Version,
	}
	if a.auditor == nil {
		a.auditor = audit.Discard{}
	}

	a.router.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	a.router.HandleFunc("/readyz", a.ready).Methods(http.MethodGet)
	a.router.HandleFunc("/v1/info", a.info).Methods(http.MethodGet)
	a.router.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	defaultRule := a.cfg.RateLimiting.API.Default
	defaultLimit := &RateLimitPolicy{MaxRequests: defaultRule.MaxRequests, WindowMs: defaultRule.WindowMs}

	anyRole := []string{rbac.RoleStudent, rbac.RoleParent, rbac.RoleCounselor, rbac.RoleAdmin}

	a.handle("/v1/session", Policy{
		Name:          "session.read",
		RequiredRoles: anyRole,
		RateLimit:     defaultLimit,
		Resource:      "sessions",
	}, http.MethodGet, a.currentSession)

	// Refresh attempts are budgeted per identity like login attempts.
	a.handle("/v1/session/refresh", Policy{
		Name:          "session.refresh",
		RequiredRoles: anyRole,
		RateLimit:     &RateLimitPolicy{MaxRequests: a.cfg.Auth.MaxLoginAttempts, WindowMs: 60_000},
		Resource:      "sessions",
	}, http.MethodPost, a.refreshSession)

	a.handle("/v1/session/signout", Policy{
		Name:      "session.signout",
		RateLimit: defaultLimit,
		Resource:  "sessions",
	}, http.MethodPost, a.signOut)

	uploadRule := a.cfg.RateLimiting.API.Uploads
	a.handle("/v1/uploads", Policy{
		Name:          "uploads.create",
		RequiredRoles: anyRole,
		RateLimit:     &RateLimitPolicy{MaxRequests: uploadRule.MaxRequests, WindowMs: uploadRule.WindowMs},
		Resource:      "uploads",
	}, http.MethodPost, a.upload)

	a.handle("/v1/guidance/plans", Policy{
		Name:          "plans.list",
		RequiredRoles: []string{rbac.RoleCounselor, rbac.RoleAdmin},
		RateLimit:     defaultLimit,
		Resource:      "guidance_plans",
	}, http.MethodGet, a.listPlans)

	a.handle("/v1/guidance/plans/{id}", Policy{
		Name:          "plans.read",
		RequiredRoles: anyRole,
		RateLimit:     defaultLimit,
		Resource:      "guidance_plans",
	}, http.MethodGet, a.getPlan)

	a.handle("/v1/students/{id}/profile", Policy{
		Name:          "profiles.read",
		RequiredRoles: anyRole,
		RateLimit:     defaultLimit,
		Resource:      "student_profiles",
	}, http.MethodGet, a.studentProfile)

	a.handle("/v1/admin/users", Policy{
		Name:          "admin.users",
		RequiredRoles: []string{rbac.RoleAdmin},
		RateLimit:     defaultLimit,
		Resource:      "users",
	}, http.MethodGet, a.adminUsers)

	a.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	})

	return a
}

func (a *API) handle(path string, policy Policy, method string, h http.HandlerFunc) {
	a.router.Handle(path, a.pipeline.Secure(policy, h)).Methods(method)
}

// Handler returns the full middleware stack around the router. The body cap
// sits well above the upload limit so oversized files still reach validation
// and fail with a structured response instead of a dropped connection.
func (a *API) Handler() http.Handler {
	maxBody := 2 * a.cfg.FileUpload.MaxFileSize
	var h http.Handler = a.router
	h = MaxBodyBytes(h, maxBody)
	h = LoggingJSON(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- open handlers ---

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "compass-gateway",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "compass-gateway",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- session handlers ---

func (a *API) currentSession(w http.ResponseWriter, r *http.Request) {
	ac, _ := authn.FromContext(r.Context())
	role := ""
	if ac.User != nil {
		role = ac.User.Role
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":     ac.UserID(),
		"role":       role,
		"sessionId":  ac.SessionID,
		"degraded":   ac.Degraded,
		"request_id": RequestIDFromContext(r.Context()),
	})
}

func (a *API) refreshSession(w http.ResponseWriter, r *http.Request) {
	token := authn.TokenFromRequest(r)
	err := a.resolver.Refresh(r.Context(), token)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "refreshed"})
	case err == authn.ErrQueuedForRetry:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
	default:
		respondError(w, http.StatusUnauthorized, "Session refresh rejected")
	}
}

func (a *API) signOut(w http.ResponseWriter, r *http.Request) {
	token := authn.TokenFromRequest(r)
	err := a.resolver.SignOut(r.Context(), token)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "signed_out"})
	case err == authn.ErrQueuedForRetry:
		// Local state is already cleared; the remote revoke replays later.
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "signed_out_pending_sync"})
	default:
		respondError(w, http.StatusBadGateway, "Sign-out failed upstream")
	}
}

// --- domain handlers ---
//
// Plan and profile handlers return placeholder payloads: this service fronts
// the guidance API, and the interesting part here is which requests reach
// them at all.

func (a *API) listPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": []any{}})
}

func (a *API) getPlan(w http.ResponseWriter, r *http.Request) {
	ac, _ := authn.FromContext(r.Context())
	planID := mux.Vars(r)["id"]

	// Counselors and admins see every plan; students and parents only their
	// own, checked against the stored owner.
	if !ac.HasRole(rbac.RoleCounselor) && !ac.HasRole(rbac.RoleAdmin) {
		if a.owns == nil {
			respondError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		owns, err := a.owns.Owns(r.Context(), "guidance_plans", planID, "owner_id", ac.UserID())
		if err != nil {
			respondError(w, http.StatusServiceUnavailable, "Ownership check unavailable")
			return
		}
		if !owns {
			respondError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": planID})
}

func (a *API) studentProfile(w http.ResponseWriter, r *http.Request) {
	ac, _ := authn.FromContext(r.Context())
	studentID := mux.Vars(r)["id"]

	if err := rbac.EnforceOwnership(ac, studentID, rbac.RoleCounselor, rbac.RoleAdmin); err != nil {
		respondError(w, http.StatusForbidden, "Insufficient permissions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": studentID})
}

func (a *API) adminUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": []any{}})
}
