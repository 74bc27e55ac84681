package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/martinsuchenak/gwconsole/internal/config"
	"github.com/martinsuchenak/gwconsole/internal/gateway"
	"github.com/martinsuchenak/gwconsole/internal/log"
	"github.com/martinsuchenak/gwconsole/internal/mgmt"
	"github.com/martinsuchenak/gwconsole/internal/model"
	"github.com/martinsuchenak/gwconsole/internal/session"
	"github.com/martinsuchenak/gwconsole/internal/storage"
)

const maxBodyBytes = 1 << 20

// Handler handles HTTP requests
type Handler struct {
	sessions *session.Manager
	gateways *gateway.Accessor
	cloner   *gateway.Cloner

	defaultServerURL string
	defaultDomain    string
}

// NewHandler creates a new API handler
func NewHandler(sessions *session.Manager, gateways *gateway.Accessor, cloner *gateway.Cloner) *Handler {
	return &Handler{sessions: sessions, gateways: gateways, cloner: cloner}
}

// SetLoginDefaults sets the server URL and domain used when a login request
// leaves them empty.
func (h *Handler) SetLoginDefaults(serverURL, domain string) {
	h.defaultServerURL = config.NormalizeServerURL(serverURL)
	h.defaultDomain = domain
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Session
	mux.HandleFunc("GET /api/session", h.getSession)
	mux.HandleFunc("POST /api/session", h.login)
	mux.HandleFunc("DELETE /api/session", h.logout)

	// Gateways
	mux.HandleFunc("GET /api/gateways", h.listGateways)
	mux.HandleFunc("POST /api/gateways/refresh", h.refreshGateways)
	mux.HandleFunc("GET /api/gateways/{uid}", h.getGateway)
	mux.HandleFunc("POST /api/gateways/{uid}/clone", h.cloneGateway)

	// Publishing
	mux.HandleFunc("POST /api/publish", h.publish)
	mux.HandleFunc("GET /api/clones/pending", h.listPendingClones)
	mux.HandleFunc("POST /api/clones/{uid}/publish", h.retryPublish)
}

// getSession handles GET /api/session
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.sessions.Current().Status())
}

type loginRequest struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Domain    string `json:"domain"`
}

// login handles POST /api/session
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	creds := session.Credentials{
		ServerURL: config.NormalizeServerURL(req.ServerURL),
		Username:  req.Username,
		Password:  req.Password,
		Domain:    req.Domain,
	}
	if creds.ServerURL == "" {
		creds.ServerURL = h.defaultServerURL
	}
	if creds.Domain == "" {
		creds.Domain = h.defaultDomain
	}

	sess, err := h.sessions.Login(r.Context(), creds)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.gateways.Reset()

	h.writeJSON(w, http.StatusOK, sess.Status())
}

// logout handles DELETE /api/session
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	err := h.sessions.Logout(r.Context())
	h.gateways.Reset()
	if err != nil {
		h.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type gatewayList struct {
	Gateways  []model.Gateway `json:"gateways"`
	Count     int             `json:"count"`
	Total     int             `json:"total"`
	Token     uint64          `json:"token"`
	FetchedAt string          `json:"fetched_at,omitempty"`
}

func newGatewayList(snap gateway.Snapshot, term string) gatewayList {
	all := snap.Gateways
	if all == nil {
		all = []model.Gateway{}
	}
	filtered := gateway.Filter(all, term)
	out := gatewayList{
		Gateways: filtered,
		Count:    len(filtered),
		Total:    len(all),
		Token:    snap.Token,
	}
	if !snap.FetchedAt.IsZero() {
		out.FetchedAt = snap.FetchedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// listGateways handles GET /api/gateways. The collection is fetched when
// refresh is requested or nothing has been loaded yet; otherwise the last
// snapshot is filtered locally.
func (h *Handler) listGateways(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if !sess.Authenticated() {
		h.serviceError(w, mgmt.NotAuthenticated())
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	snap := h.gateways.Snapshot()
	if refresh || snap.Token == 0 || snap.ServerURL != sess.ServerURL {
		var err error
		snap, err = h.gateways.Refresh(r.Context(), sess)
		if err != nil && !errors.Is(err, gateway.ErrSuperseded) {
			h.serviceError(w, err)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, newGatewayList(snap, r.URL.Query().Get("q")))
}

// refreshGateways handles POST /api/gateways/refresh
func (h *Handler) refreshGateways(w http.ResponseWriter, r *http.Request) {
	snap, err := h.gateways.Refresh(r.Context(), h.sessions.Current())
	if errors.Is(err, gateway.ErrSuperseded) {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newGatewayList(snap, ""))
}

// getGateway handles GET /api/gateways/{uid}
func (h *Handler) getGateway(w http.ResponseWriter, r *http.Request) {
	gw, err := h.gateways.Get(r.Context(), h.sessions.Current(), r.PathValue("uid"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gw)
}

// cloneGateway handles POST /api/gateways/{uid}/clone
func (h *Handler) cloneGateway(w http.ResponseWriter, r *http.Request) {
	var req model.CloneRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess := h.sessions.Current()
	source, err := h.gateways.Get(r.Context(), sess, r.PathValue("uid"))
	if err != nil {
		h.serviceError(w, err)
		return
	}

	created, err := h.cloner.Clone(r.Context(), sess, source, req)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// publish handles POST /api/publish
func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	taskID, err := h.cloner.Publish(r.Context(), h.sessions.Current())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID})
}

// listPendingClones handles GET /api/clones/pending
func (h *Handler) listPendingClones(w http.ResponseWriter, r *http.Request) {
	recs, err := h.cloner.PendingPublish(h.sessions.Current())
	if err != nil {
		h.serviceError(w, err)
		return
	}
	if recs == nil {
		recs = []model.CloneRecord{}
	}
	h.writeJSON(w, http.StatusOK, recs)
}

// retryPublish handles POST /api/clones/{uid}/publish
func (h *Handler) retryPublish(w http.ResponseWriter, r *http.Request) {
	rec, err := h.cloner.RetryPublish(r.Context(), h.sessions.Current(), r.PathValue("uid"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// serviceError maps workflow errors onto HTTP statuses.
func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	var (
		valErr     *mgmt.ValidationError
		authErr    *mgmt.AuthError
		createErr  *gateway.CreateFailedError
		publishErr *gateway.PublishFailedError
		apiErr     *mgmt.APIError
	)

	switch {
	case errors.As(err, &valErr):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": valErr.Error(), "field": valErr.Field})
	case errors.As(err, &authErr):
		h.writeError(w, http.StatusUnauthorized, authErr.Error())
	case errors.As(err, &publishErr):
		h.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":        publishErr.Error(),
			"stage":        "publish",
			"created_uid":  publishErr.Gateway.UID,
			"created_name": publishErr.Gateway.Name,
		})
	case errors.As(err, &createErr):
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": createErr.Error(), "stage": "create"})
	case errors.Is(err, mgmt.ErrConnection):
		log.Warn("Management server unreachable", "error", err)
		h.writeError(w, http.StatusGatewayTimeout, "connection error")
	case errors.Is(err, storage.ErrCloneNotFound):
		h.writeError(w, http.StatusNotFound, "clone not found")
	case errors.As(err, &apiErr):
		status := http.StatusBadGateway
		if apiErr.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
		h.writeError(w, status, apiErr.Error())
	default:
		h.internalError(w, err)
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// internalError logs the error and writes a generic 500 response
func (h *Handler) internalError(w http.ResponseWriter, err error) {
	log.Error("Internal server error", "error", err)
	h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
}
