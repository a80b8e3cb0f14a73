package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatehouse/internal/platform/middleware"
	"gatehouse/internal/visit"
	id "gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/httputil"
	"gatehouse/pkg/requestcontext"
)

// Service is the slice of the visit lifecycle the transport consumes.
type Service interface {
	CreateWalkIn(ctx context.Context, req visit.CreateWalkInRequest, identity requestcontext.ActingIdentity) (*visit.CreatedVisit, error)
	PreRegister(ctx context.Context, req visit.PreRegisterRequest, identity requestcontext.ActingIdentity) (*visit.CreatedVisit, error)
	Approve(ctx context.Context, visitID id.VisitID, identity requestcontext.ActingIdentity) (*visit.Visit, error)
	Reject(ctx context.Context, visitID id.VisitID, identity requestcontext.ActingIdentity, reason string) (*visit.Visit, error)
	ConfirmArrival(ctx context.Context, rawToken string, identity requestcontext.ActingIdentity) (*visit.Visit, error)
	Checkout(ctx context.Context, rawToken string, identity requestcontext.ActingIdentity) (*visit.Visit, error)
	GetByToken(ctx context.Context, rawToken string) (*visit.Visit, error)
	Active(ctx context.Context, rawLocation string) ([]*visit.Visit, error)
	History(ctx context.Context, filter visit.HistoryFilter) ([]*visit.Visit, error)
	PendingForHost(ctx context.Context, identity requestcontext.ActingIdentity) ([]*visit.Visit, error)
	CheckEvents(ctx context.Context, visitID id.VisitID) ([]visit.CheckEvent, error)
}

// Handler exposes the visit lifecycle over HTTP.
type Handler struct {
	service      Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(service Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{service: service, logger: logger, jwtValidator: jwtValidator}
}

// Register mounts the visit routes with their middleware chain.
func (h *Handler) Register(r chi.Router) {
	visitRouter := chi.NewRouter()
	visitRouter.Use(middleware.Recovery(h.logger))
	visitRouter.Use(middleware.RequestID)
	visitRouter.Use(middleware.Logger(h.logger))
	visitRouter.Use(middleware.Timeout(30 * time.Second))
	visitRouter.Use(middleware.ContentTypeJSON)
	visitRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	visitRouter.Post("/visits", h.handleCreateWalkIn)
	visitRouter.Post("/visits/pre-register", h.handlePreRegister)
	visitRouter.Get("/visits/pending", h.handlePending)
	visitRouter.Post("/visits/{visitID}/approve", h.handleApprove)
	visitRouter.Post("/visits/{visitID}/reject", h.handleReject)
	visitRouter.Get("/visits/{visitID}/events", h.handleCheckEvents)
	visitRouter.Post("/visits/arrival", h.handleConfirmArrival)
	visitRouter.Post("/visits/checkout", h.handleCheckout)
	visitRouter.Get("/visits/lookup", h.handleLookup)
	visitRouter.Get("/visits/active", h.handleActive)
	visitRouter.Get("/visits/history", h.handleHistory)

	r.Mount("/", visitRouter)
}

type createWalkInRequest struct {
	HostID         string `json:"host_id"`
	VisitorName    string `json:"visitor_name"`
	VisitorCompany string `json:"visitor_company,omitempty"`
	VisitorPhone   string `json:"visitor_phone,omitempty"`
	VisitorEmail   string `json:"visitor_email,omitempty"`
	Purpose        string `json:"purpose"`
	Location       string `json:"location"`
}

type preRegisterRequest struct {
	VisitorName    string `json:"visitor_name"`
	VisitorCompany string `json:"visitor_company,omitempty"`
	VisitorPhone   string `json:"visitor_phone,omitempty"`
	VisitorEmail   string `json:"visitor_email,omitempty"`
	Purpose        string `json:"purpose"`
	Location       string `json:"location,omitempty"`
	ExpectedDate   string `json:"expected_date,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *Handler) handleCreateWalkIn(w http.ResponseWriter, r *http.Request) {
	var req createWalkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	hostID, err := id.ParseHostID(req.HostID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.service.CreateWalkIn(r.Context(), visit.CreateWalkInRequest{
		HostID:         hostID,
		VisitorName:    req.VisitorName,
		VisitorCompany: req.VisitorCompany,
		VisitorPhone:   req.VisitorPhone,
		VisitorEmail:   req.VisitorEmail,
		Purpose:        req.Purpose,
		Location:       req.Location,
	}, requestcontext.Identity(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "create walk-in visit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCreatedResponse(created))
}

func (h *Handler) handlePreRegister(w http.ResponseWriter, r *http.Request) {
	var req preRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	var expected *time.Time
	if req.ExpectedDate != "" {
		t, err := time.Parse(time.RFC3339, req.ExpectedDate)
		if err != nil {
			// Date-only input is fine for an expected arrival day.
			t, err = time.Parse("2006-01-02", req.ExpectedDate)
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected_date must be RFC3339 or YYYY-MM-DD"))
				return
			}
		}
		expected = &t
	}

	created, err := h.service.PreRegister(r.Context(), visit.PreRegisterRequest{
		VisitorName:    req.VisitorName,
		VisitorCompany: req.VisitorCompany,
		VisitorPhone:   req.VisitorPhone,
		VisitorEmail:   req.VisitorEmail,
		Purpose:        req.Purpose,
		Location:       req.Location,
		ExpectedDate:   expected,
	}, requestcontext.Identity(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "pre-register visit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCreatedResponse(created))
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	visits, err := h.service.PendingForHost(r.Context(), requestcontext.Identity(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "list pending visits", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVisitList(visits))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	visitID, err := id.ParseVisitID(chi.URLParam(r, "visitID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.Approve(r.Context(), visitID, requestcontext.Identity(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "approve visit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVisitResponse(v))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	visitID, err := id.ParseVisitID(chi.URLParam(r, "visitID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req rejectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	if _, err := h.service.Reject(r.Context(), visitID, requestcontext.Identity(r.Context()), req.Reason); err != nil {
		h.writeServiceError(w, r, "reject visit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "visit rejected"})
}

func (h *Handler) handleConfirmArrival(w http.ResponseWriter, r *http.Request) {
	token, ok := h.decodeToken(w, r)
	if !ok {
		return
	}
	v, err := h.service.ConfirmArrival(r.Context(), token, requestcontext.Identity(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "confirm arrival", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVisitResponse(v))
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.decodeToken(w, r)
	if !ok {
		return
	}
	v, err := h.service.Checkout(r.Context(), token, requestcontext.Identity(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "checkout visit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVisitResponse(v))
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetByToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.writeServiceError(w, r, "lookup visit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVisitResponse(v))
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	visits, err := h.service.Active(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		h.writeServiceError(w, r, "list active visits", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVisitList(visits))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter := visit.HistoryFilter{}
	if raw := r.URL.Query().Get("location"); raw != "" {
		filter.Location = id.ParseLocation(raw)
	}
	var ok bool
	if filter.From, ok = h.parseTimeParam(w, r, "from"); !ok {
		return
	}
	if filter.To, ok = h.parseTimeParam(w, r, "to"); !ok {
		return
	}

	visits, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, "list visit history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVisitList(visits))
}

func (h *Handler) handleCheckEvents(w http.ResponseWriter, r *http.Request) {
	visitID, err := id.ParseVisitID(chi.URLParam(r, "visitID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.CheckEvents(r.Context(), visitID)
	if err != nil {
		h.writeServiceError(w, r, "list check events", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventList(events))
}

func (h *Handler) decodeToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "token is required"))
		return "", false
	}
	return req.Token, true
}

func (h *Handler) parseTimeParam(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, name+" must be RFC3339 or YYYY-MM-DD"))
			return nil, false
		}
	}
	return &t, true
}

// writeServiceError logs internal failures and renders the coded error.
// Expected failures (bad input, forbidden, state conflicts) stay at warn.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, "failed to "+action,
			"request_id", requestID,
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "rejected request to "+action,
			"request_id", requestID,
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
