package claims

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carbonledger/carbonledger/internal/ledger"
	"github.com/carbonledger/carbonledger/internal/platform/httpx"
	"github.com/carbonledger/carbonledger/internal/shared"
)

var errorRules = []httpx.Rule{
	{Err: shared.ErrMissingPrincipal, Status: http.StatusUnauthorized, Title: "Unauthenticated"},
	{Err: ErrDuplicateClaim, Status: http.StatusConflict, Title: "DuplicateClaim"},
	{Err: ErrClaimNotFound, Status: http.StatusNotFound, Title: "ClaimNotFound"},
	{Err: ledger.ErrUnauthorized, Status: http.StatusForbidden, Title: "Unauthorized"},
	{Err: ledger.ErrJurisdictionMismatch, Status: http.StatusUnprocessableEntity, Title: "JurisdictionMismatch"},
	{Err: ledger.ErrInvalidInput, Status: http.StatusBadRequest, Title: "InvalidInput"},
}

type submitRequest struct {
	AmountWh     uint64        `json:"amount_wh" validate:"required"`
	Date         string        `json:"date" validate:"required,datetime=2006-01-02"`
	Method       string        `json:"method" validate:"required,max=64"`
	EnergySource string        `json:"energy_source" validate:"required,max=64"`
	CityID       ledger.CityID `json:"city_id" validate:"required"`
}

// Handler exposes claim submission over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers claim routes.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil || h.service == nil {
		return
	}
	r.Post("/claims", h.handleSubmit)
	r.Get("/claims", h.handleList)
	r.Get("/claims/{hash}", h.handleStatus)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	caller := shared.PrincipalFromContext(r.Context())
	if caller == "" {
		caller = shared.PrincipalFromRequest(r)
	}
	if caller == "" {
		h.respondError(w, shared.ErrMissingPrincipal)
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.Submit(r.Context(), ledger.Principal(caller), ledger.ProductionClaim{
		AmountWh:     req.AmountWh,
		Date:         req.Date,
		Method:       req.Method,
		EnergySource: req.EnergySource,
		City:         req.CityID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	hash, err := ledger.ParseClaimHash(chi.URLParam(r, "hash"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	view, err := h.service.Status(r.Context(), hash)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	submitter := strings.TrimSpace(r.URL.Query().Get("submitter"))
	if submitter == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "submitter required")
		return
	}
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	hashes, err := h.service.Submitted(r.Context(), ledger.Principal(submitter), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"hashes": hashes})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if !httpx.Known(err, errorRules) {
		h.logger.Error("claims request", slog.Any("error", err))
	}
	httpx.RespondErrorWith(w, err, errorRules)
}
