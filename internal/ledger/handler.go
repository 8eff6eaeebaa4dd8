package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carbonledger/carbonledger/internal/platform/httpx"
	"github.com/carbonledger/carbonledger/internal/shared"
)

// MaxUnitsPerQuery bounds range queries served over HTTP.
const MaxUnitsPerQuery = 1000

var errorRules = []httpx.Rule{
	{Err: shared.ErrMissingPrincipal, Status: http.StatusUnauthorized, Title: "Unauthenticated"},
	{Err: ErrNotACertifier, Status: http.StatusForbidden, Title: "NotACertifier"},
	{Err: ErrRetirerNotBuyer, Status: http.StatusForbidden, Title: "RetirerNotBuyer"},
	{Err: ErrCertificationSpent, Status: http.StatusForbidden, Title: "CertificationSpent"},
	{Err: ErrNotCertified, Status: http.StatusForbidden, Title: "NotCertified"},
	{Err: ErrUnauthorized, Status: http.StatusForbidden, Title: "Unauthorized"},
	{Err: ErrNotOwner, Status: http.StatusForbidden, Title: "NotOwner"},
	{Err: ErrRoleConflict, Status: http.StatusConflict, Title: "RoleConflict"},
	{Err: ErrAlreadyAssigned, Status: http.StatusConflict, Title: "AlreadyAssigned"},
	{Err: ErrAlreadyCertified, Status: http.StatusConflict, Title: "AlreadyCertified"},
	{Err: ErrAlreadyRetired, Status: http.StatusConflict, Title: "AlreadyRetired"},
	{Err: ErrUnitRetired, Status: http.StatusConflict, Title: "UnitRetired"},
	{Err: ErrJournalConflict, Status: http.StatusConflict, Title: "JournalConflict"},
	{Err: ErrLedgerHalted, Status: http.StatusServiceUnavailable, Title: "LedgerHalted"},
	{Err: ErrJurisdictionMismatch, Status: http.StatusUnprocessableEntity, Title: "JurisdictionMismatch"},
	{Err: ErrSelfIssuance, Status: http.StatusUnprocessableEntity, Title: "SelfIssuance"},
	{Err: ErrSelfAppointmentForbidden, Status: http.StatusUnprocessableEntity, Title: "SelfAppointmentForbidden"},
	{Err: ErrAmountOutOfRange, Status: http.StatusUnprocessableEntity, Title: "AmountOutOfRange"},
	{Err: ErrSellerNotProducer, Status: http.StatusUnprocessableEntity, Title: "SellerNotProducer"},
	{Err: ErrRecipientNotProducer, Status: http.StatusUnprocessableEntity, Title: "RecipientNotProducer"},
	{Err: ErrUnitNotFound, Status: http.StatusNotFound, Title: "UnitNotFound"},
	{Err: ErrInvalidInput, Status: http.StatusBadRequest, Title: "InvalidInput"},
}

// Handler exposes the ledger over JSON HTTP.
type Handler struct {
	logger    *slog.Logger
	ledger    *Ledger
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, l *Ledger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, ledger: l, validator: validator.New()}
}

// MountRoutes registers ledger routes under /ledger.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil || h.ledger == nil {
		return
	}
	r.Route("/ledger", func(r chi.Router) {
		r.Post("/appointments/countries", h.handleAppointCountry)
		r.Post("/appointments/states", h.handleAppointState)
		r.Post("/appointments/cities", h.handleAppointCity)
		r.Post("/producers", h.handleRegisterProducer)
		r.Post("/buyers", h.handleRegisterBuyer)
		r.Post("/roles", h.handleAssignRole)
		r.Get("/principals/{principal}", h.handlePrincipal)
		r.Post("/certifications", h.handleCertify)
		r.Get("/certifications/{hash}", h.handleCertification)
		r.Post("/issuances", h.handleIssue)
		r.Get("/units", h.handleListUnits)
		r.Get("/units/{id}", h.handleUnit)
		r.Post("/units/{id}/transfer", h.handleTransfer)
		r.Post("/units/{id}/retire", h.handleRetire)
		r.Get("/stats", h.handleStats)
	})
}

func (h *Handler) handleAppointCountry(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req appointCountryRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.ledger.AppointCountryAdmin(r.Context(), caller, Principal(req.Principal))
	if err != nil {
		h.respondError(w, "appoint country admin", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleAppointState(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req appointStateRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.ledger.AppointStateAdmin(r.Context(), caller, Principal(req.Principal), req.CountryID)
	if err != nil {
		h.respondError(w, "appoint state admin", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleAppointCity(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req appointCityRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.ledger.AppointCityAdmin(r.Context(), caller, Principal(req.Principal), req.StateID)
	if err != nil {
		h.respondError(w, "appoint city admin", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleRegisterProducer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req registerProducerRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.ledger.RegisterProducer(r.Context(), caller, Principal(req.Principal), req.CityID)
	if err != nil {
		h.respondError(w, "register producer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleRegisterBuyer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	ev, err := h.ledger.RegisterBuyer(r.Context(), caller)
	if err != nil {
		h.respondError(w, "register buyer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		h.respondError(w, "assign role", fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	target := Jurisdiction{Country: req.CountryID, State: req.StateID, City: req.CityID}
	ev, err := h.ledger.AssignRole(r.Context(), caller, Principal(req.Principal), role, target)
	if err != nil {
		h.respondError(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ev)
}

func (h *Handler) handlePrincipal(w http.ResponseWriter, r *http.Request) {
	p := Principal(chi.URLParam(r, "principal")).Normalize()
	resp := principalResponse{Principal: p, Role: h.ledger.RoleOf(p)}
	if j, ok := h.ledger.JurisdictionOf(p); ok && !j.IsZero() {
		resp.Jurisdiction = &j
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCertify(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req certifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	hash, err := ParseClaimHash(req.ClaimHash)
	if err != nil {
		h.respondError(w, "certify", err)
		return
	}
	ev, err := h.ledger.Certify(r.Context(), caller, hash, req.CityID)
	if err != nil {
		h.respondError(w, "certify", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleCertification(w http.ResponseWriter, r *http.Request) {
	hash, err := ParseClaimHash(chi.URLParam(r, "hash"))
	if err != nil {
		h.respondError(w, "certification", err)
		return
	}
	rec, ok := h.ledger.CertificationOf(hash)
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "claim has no certification")
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if !h.decode(w, r, &req) {
		return
	}
	hash, err := ParseClaimHash(req.ClaimHash)
	if err != nil {
		h.respondError(w, "issue", err)
		return
	}
	ev, err := h.ledger.Issue(r.Context(), caller, Principal(req.To), req.Amount, hash)
	if err != nil {
		h.respondError(w, "issue", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ev)
}

func (h *Handler) handleUnit(w http.ResponseWriter, r *http.Request) {
	id, err := unitParam(r)
	if err != nil {
		h.respondError(w, "unit", err)
		return
	}
	u, ok := h.ledger.Unit(id)
	if !ok {
		h.respondError(w, "unit", ErrUnitNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if owner := strings.TrimSpace(q.Get("owner")); owner != "" {
		units := h.ledger.UnitsOwnedBy(Principal(owner))
		httpx.JSON(w, http.StatusOK, unitsResponse{Units: units, Count: len(units)})
		return
	}
	first, errFirst := strconv.ParseUint(q.Get("first"), 10, 64)
	last, errLast := strconv.ParseUint(q.Get("last"), 10, 64)
	if errFirst != nil || errLast != nil || first == 0 || last < first {
		h.respondError(w, "list units", fmt.Errorf("%w: owner or first/last required", ErrInvalidInput))
		return
	}
	if last-first+1 > MaxUnitsPerQuery {
		h.respondError(w, "list units", fmt.Errorf("%w: at most %d units per query", ErrInvalidInput, MaxUnitsPerQuery))
		return
	}
	units := h.ledger.UnitsInRange(IDRange{First: UnitID(first), Last: UnitID(last)})
	httpx.JSON(w, http.StatusOK, unitsResponse{Units: units, Count: len(units)})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := unitParam(r)
	if err != nil {
		h.respondError(w, "transfer", err)
		return
	}
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	from := Principal(req.From)
	if from.IsZero() {
		from = caller
	}
	ev, err := h.ledger.Transfer(r.Context(), caller, id, from, Principal(req.To))
	if err != nil {
		h.respondError(w, "transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ev)
}

func (h *Handler) handleRetire(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := unitParam(r)
	if err != nil {
		h.respondError(w, "retire", err)
		return
	}
	ev, err := h.ledger.Retire(r.Context(), caller, id)
	if err != nil {
		h.respondError(w, "retire", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ev)
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, h.ledger.Stats())
}

// caller resolves the authenticated principal, writing 401 when absent.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	raw := shared.PrincipalFromContext(r.Context())
	if raw == "" {
		raw = shared.PrincipalFromRequest(r)
	}
	p := Principal(raw)
	if p.IsZero() {
		h.respondError(w, "resolve caller", shared.ErrMissingPrincipal)
		return "", false
	}
	return p, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		fields := make([]string, 0)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields = append(fields, fieldErr.Field()+" "+fieldErr.Tag())
			}
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(fields, "; "))
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !httpx.Known(err, errorRules) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondErrorWith(w, err, errorRules)
}

func unitParam(r *http.Request) (UnitID, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: unit id must be a positive integer", ErrInvalidInput)
	}
	return UnitID(id), nil
}
