package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendledger/core"
	"lendledger/crypto"
	"lendledger/observability"
	"lendledger/rpc/modules"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the ledger over JSON-RPC together with health and metrics
// endpoints.
type Server struct {
	ledger    *core.Ledger
	loan      *modules.LoanModule
	token     *modules.TokenModule
	authToken string
	log       *slog.Logger
	metrics   *observability.RPCMetrics

	httpServer *http.Server
}

// NewServer wires the RPC modules over the ledger. The auth token guards
// mutating methods; when empty, those methods are rejected outright.
func NewServer(ledger *core.Ledger, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ledger:    ledger,
		loan:      modules.NewLoanModule(ledger, formatAddress),
		token:     modules.NewTokenModule(ledger, formatAddress),
		authToken: strings.TrimSpace(authToken),
		log:       logger,
		metrics:   observability.Metrics(),
	}
}

func formatAddress(raw [20]byte) string {
	return crypto.NewAddress(crypto.LendPrefix, raw[:]).String()
}

// Router builds the HTTP routing table. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves requests until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	s.log.Info("rpc server listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeModuleError(w http.ResponseWriter, id interface{}, err *modules.ModuleError) {
	if err == nil {
		return
	}
	writeError(w, err.HTTPStatus, id, err.Code, err.Message, err.Data)
}

// statusRecorder captures the HTTP status a handler wrote so failed calls
// can be labelled with their real status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handle routes a JSON-RPC envelope to the matching method handler.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	module, method := splitMethod(req.Method)
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	outcome := s.dispatch(recorder, r, req)
	s.metrics.Observe(module, method, outcome, time.Since(started))
}

func splitMethod(method string) (string, string) {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx], method[idx+1:]
	}
	return method, ""
}

func (s *Server) dispatch(w *statusRecorder, r *http.Request, req *RPCRequest) string {
	handler, ok := s.route(req.Method)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
		return "unknown"
	}
	if handler.authenticated {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return "unauthorized"
		}
	}
	if !handler.fn(w, req) {
		module, method := splitMethod(req.Method)
		s.metrics.ObserveError(module, method, strconv.Itoa(w.status))
		return "error"
	}
	return "ok"
}

type methodHandler struct {
	authenticated bool
	fn            func(http.ResponseWriter, *RPCRequest) bool
}

func (s *Server) route(method string) (methodHandler, bool) {
	switch method {
	case "loan_createOffer":
		return methodHandler{authenticated: true, fn: s.handleLoanCreateOffer}, true
	case "loan_match":
		return methodHandler{authenticated: true, fn: s.handleLoanMatch}, true
	case "loan_repay":
		return methodHandler{authenticated: true, fn: s.handleLoanRepay}, true
	case "loan_claimCollateral":
		return methodHandler{authenticated: true, fn: s.handleLoanClaimCollateral}, true
	case "loan_setExchangeRate":
		return methodHandler{authenticated: true, fn: s.handleLoanSetExchangeRate}, true
	case "loan_getAgreement":
		return methodHandler{fn: s.handleLoanGetAgreement}, true
	case "loan_getParams":
		return methodHandler{fn: s.handleLoanGetParams}, true
	case "loan_listEvents":
		return methodHandler{fn: s.handleLoanListEvents}, true
	case "token_balanceOf":
		return methodHandler{fn: s.handleTokenBalanceOf}, true
	case "token_transfer":
		return methodHandler{authenticated: true, fn: s.handleTokenTransfer}, true
	case "token_approve":
		return methodHandler{authenticated: true, fn: s.handleTokenApprove}, true
	case "token_allowance":
		return methodHandler{fn: s.handleTokenAllowance}, true
	case "token_mint":
		return methodHandler{authenticated: true, fn: s.handleTokenMint}, true
	case "token_totalSupply":
		return methodHandler{fn: s.handleTokenTotalSupply}, true
	default:
		return methodHandler{}, false
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func singleObjectParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	decoder := json.NewDecoder(bytes.NewReader(req.Params[0]))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func parseAddress(field, value string) ([20]byte, error) {
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s address: %w", field, err)
	}
	return decoded.Raw(), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s amount required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s amount %q", field, value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%s amount must not be negative", field)
	}
	return amount, nil
}
