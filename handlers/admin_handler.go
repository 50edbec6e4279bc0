package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/supplywise/auth-gateway/cognito"
	"github.com/supplywise/auth-gateway/middleware"
	"github.com/supplywise/auth-gateway/models"
	"github.com/supplywise/auth-gateway/utils"
	"go.uber.org/zap"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 500
)

// KeyAdmin inspects and refreshes the signing key cache
type KeyAdmin interface {
	URL() string
	Status() cognito.KeySetStatus
	Refresh(ctx context.Context) error
}

// DecisionLister reads the access decision audit trail
type DecisionLister interface {
	ListBySubject(ctx context.Context, subject string, limit int) ([]*models.AccessDecision, error)
}

// KeyStatusResponse is returned by the key admin endpoints
type KeyStatusResponse struct {
	URL string `json:"url"`
	cognito.KeySetStatus
}

// DecisionsResponse lists recent decisions for one subject
type DecisionsResponse struct {
	Subject   string                   `json:"subject"`
	Decisions []*models.AccessDecision `json:"decisions"`
}

// AdminHandler serves the operator endpoints under /api/admin
type AdminHandler struct {
	keys      KeyAdmin
	decisions DecisionLister
	logger    *zap.Logger
}

// NewAdminHandler creates a new AdminHandler. decisions may be nil when auditing is off.
func NewAdminHandler(keys KeyAdmin, decisions DecisionLister, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		keys:      keys,
		decisions: decisions,
		logger:    logger,
	}
}

// HandleKeys handles GET /api/admin/keys
func (h *AdminHandler) HandleKeys(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, KeyStatusResponse{URL: h.keys.URL(), KeySetStatus: h.keys.Status()})
}

// HandleRefreshKeys handles POST /api/admin/keys/refresh
func (h *AdminHandler) HandleRefreshKeys(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	principal, _ := middleware.GetPrincipalFromContext(r.Context())
	if err := h.keys.Refresh(ctx); err != nil {
		h.logger.Error("manual key refresh failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteServiceUnavailable(w, "Signing key refresh failed", map[string]interface{}{
			"last_error": h.keys.Status().LastError,
		})
		return
	}

	fields := []zap.Field{zap.String("request_id", middleware.GetRequestIDFromContext(r.Context()))}
	if principal != nil {
		fields = append(fields, zap.String("username", principal.Username()))
	}
	h.logger.Info("signing keys refreshed", fields...)

	_ = utils.WriteOK(w, KeyStatusResponse{URL: h.keys.URL(), KeySetStatus: h.keys.Status()})
}

// HandleDecisions handles GET /api/admin/decisions/{subject}
func (h *AdminHandler) HandleDecisions(w http.ResponseWriter, r *http.Request) {
	if h.decisions == nil {
		_ = utils.WriteNotFound(w, "Access decision audit is disabled")
		return
	}

	limit := defaultDecisionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = min(n, maxDecisionLimit)
		}
	}

	subject := chi.URLParam(r, "subject")
	decisions, err := h.decisions.ListBySubject(r.Context(), subject, limit)
	if err != nil {
		h.logger.Error("failed to list access decisions",
			zap.String("subject", subject),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	if decisions == nil {
		decisions = []*models.AccessDecision{}
	}

	_ = utils.WriteOK(w, DecisionsResponse{Subject: subject, Decisions: decisions})
}
