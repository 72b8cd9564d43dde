package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"redeemdesk/internal/hmacauth"
	"redeemdesk/internal/journal"
	"redeemdesk/internal/notify"
	"redeemdesk/internal/pool"
	"redeemdesk/internal/redeem"
	"redeemdesk/internal/units"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const defaultHistoryLimit = 50

type Options struct {
	Port          int
	HMACSecret    string
	HMACClockSkew time.Duration
	// RPC is probed by the health endpoint when it implements pool.HealthChecker.
	RPC     pool.Client
	Feed    *notify.Feed
	Journal journal.Store
	Logger  *logrus.Entry
}

type Server struct {
	ctrl        *redeem.Controller
	feed        *notify.Feed
	journal     journal.Store
	httpServer  *http.Server
	metrics     *metricsRegistry
	log         *logrus.Entry
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

func NewServer(ctrl *redeem.Controller, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	verifier := &hmacauth.Verifier{
		Secret:  opts.HMACSecret,
		MaxSkew: opts.HMACClockSkew,
	}

	s := &Server{
		ctrl:    ctrl,
		feed:    opts.Feed,
		journal: opts.Journal,
		log:     logger.WithField("component", "server"),
		metrics: newMetricsRegistry(func() float64 {
			return float64(ctrl.View().CurrentBlock)
		}),
	}
	if checker, ok := opts.Journal.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := opts.RPC.(pool.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, verifier.Middleware)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/collaterals", s.handleCollaterals).Methods(http.MethodGet)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)
	api.HandleFunc("/form", s.handleForm).Methods(http.MethodPost)
	api.HandleFunc("/approve", s.action(journal.KindApprove, ctrl.OnApprove)).Methods(http.MethodPost)
	api.HandleFunc("/redeem", s.action(journal.KindRedeem, ctrl.OnSubmitRedeem)).Methods(http.MethodPost)
	api.HandleFunc("/collect", s.action(journal.KindCollect, ctrl.OnCollectRedemption)).Methods(http.MethodPost)

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Infof("API listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ObserveBlockError counts a failed block evaluation. It fits watcher.Options.OnError.
func (s *Server) ObserveBlockError(error) {
	s.metrics.incBlockError()
}

func (s *Server) handleCollaterals(w http.ResponseWriter, r *http.Request) {
	collaterals := s.ctrl.Collaterals()
	if collaterals == nil {
		collaterals = []redeem.Collateral{}
	}
	writeJSON(w, http.StatusOK, collaterals)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.View())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notes := []notify.Notification{}
	if s.feed != nil {
		if since := s.feed.Since(r.URL.Query().Get("since")); since != nil {
			notes = since
		}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusOK, []journal.Entry{})
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	entries, err := s.journal.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to read history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type formRequest struct {
	CollateralIndex  *uint64 `json:"collateralIndex"`
	DollarAmount     *string `json:"dollarAmount"`
	GovernanceOutMin *string `json:"governanceOutMin"`
	CollateralOutMin *string `json:"collateralOutMin"`
}

// handleForm applies each present field as its own change event. Invalid
// amounts still reset the field to zero before the 400 is returned.
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	var payload formRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	var errs []error
	if payload.CollateralIndex != nil {
		errs = append(errs, s.ctrl.OnCollateralChange(*payload.CollateralIndex))
	}
	if payload.DollarAmount != nil {
		errs = append(errs, s.ctrl.OnAmountChange(*payload.DollarAmount))
	}
	if payload.GovernanceOutMin != nil {
		errs = append(errs, s.ctrl.OnGovernanceMinChange(*payload.GovernanceOutMin))
	}
	if payload.CollateralOutMin != nil {
		errs = append(errs, s.ctrl.OnCollateralMinChange(*payload.CollateralOutMin))
	}
	if err := errors.Join(errs...); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.View())
}

type actionFunc func(context.Context) (redeem.Outcome, error)

// action runs a submitter detached from the client connection, so a dropped
// request cannot abandon a transaction mid-flight.
func (s *Server) action(kind journal.Kind, run actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithoutCancel(r.Context())
		out, err := run(ctx)
		if err == nil {
			s.metrics.incAction(string(kind), string(out.Status))
			writeJSON(w, http.StatusOK, out)
			return
		}

		code := statusFor(err)
		if out.Status == "" {
			s.metrics.incAction(string(kind), "rejected")
			http.Error(w, err.Error(), code)
			return
		}
		s.metrics.incAction(string(kind), string(out.Status))
		writeJSON(w, code, out)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, redeem.ErrInteractionLocked), errors.Is(err, redeem.ErrCollectNotReady):
		return http.StatusConflict
	case errors.Is(err, redeem.ErrZeroAmount),
		errors.Is(err, redeem.ErrUnknownCollateral),
		errors.Is(err, pool.ErrSlippageUnsupported),
		errors.Is(err, units.ErrInvalidAmount),
		errors.Is(err, units.ErrNegativeAmount):
		return http.StatusBadRequest
	case errors.Is(err, redeem.ErrNoAccount), errors.Is(err, pool.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, redeem.ErrTransactionReverted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, redeem.ErrFinalityTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status    string      `json:"status"`
		RPC       interface{} `json:"rpc"`
		Journal   interface{} `json:"journal"`
		HeadBlock uint64      `json:"head_block"`
	}{
		Status:    status,
		RPC:       rpcInfo,
		Journal:   dbInfo,
		HeadBlock: s.ctrl.View().CurrentBlock,
	}

	code := http.StatusOK
	if !overallHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
