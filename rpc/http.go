// Package rpc exposes the engine's read-only state queries over HTTP. All
// routes are side-effect free; mutations happen only through the engine's
// Go API inside the host process.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	bloxcrypto "engineblox/crypto"
	"engineblox/native/secureops"
)

// Server serves the query API for one engine instance.
type Server struct {
	engine *secureops.Engine
	logger *slog.Logger
	router chi.Router
}

// ServerOptions tune the middleware stack.
type ServerOptions struct {
	Auth              AuthConfig
	RequestsPerSecond float64
	Burst             int
}

// NewServer wires the query routes for the engine.
func NewServer(engine *secureops.Engine, logger *slog.Logger, opts ServerOptions) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, logger: logger}
	r := chi.NewRouter()
	r.Use(newRateLimiter(opts.RequestsPerSecond, opts.Burst).middleware)
	r.Use(newAuthenticator(opts.Auth).middleware)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/transactions", s.handleTransactionHistory)
		r.Get("/transactions/pending", s.handlePendingTransactions)
		r.Get("/transactions/{id}", s.handleTransactionByID)
		r.Get("/roles", s.handleSupportedRoles)
		r.Get("/roles/{hash}", s.handleRole)
		r.Get("/roles/{hash}/wallets", s.handleRoleWallets)
		r.Get("/wallets/{address}/roles", s.handleWalletRoles)
		r.Get("/functions", s.handleSupportedFunctions)
		r.Get("/functions/{selector}", s.handleFunctionSchema)
		r.Get("/functions/{selector}/whitelist", s.handleFunctionWhitelist)
		r.Get("/operation-types", s.handleOperationTypes)
		r.Get("/nonces/{address}", s.handleSignerNonce)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler for mounting.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("rpc: response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type txRecordJSON struct {
	TxID              uint64 `json:"txId"`
	Status            string `json:"status"`
	ReleaseTime       int64  `json:"releaseTime"`
	Requester         string `json:"requester"`
	Target            string `json:"target"`
	Value             string `json:"value"`
	GasLimit          uint64 `json:"gasLimit,omitempty"`
	OperationType     string `json:"operationType"`
	ExecutionSelector string `json:"executionSelector"`
	Message           string `json:"message"`
	Result            string `json:"result,omitempty"`
}

func recordToJSON(record *secureops.TxRecord) txRecordJSON {
	value := "0"
	if record.Params.Value != nil {
		value = record.Params.Value.String()
	}
	return txRecordJSON{
		TxID:              record.TxID,
		Status:            record.Status.String(),
		ReleaseTime:       record.ReleaseTime,
		Requester:         "0x" + hex.EncodeToString(record.Params.Requester[:]),
		Target:            "0x" + hex.EncodeToString(record.Params.Target[:]),
		Value:             value,
		GasLimit:          record.Params.GasLimit,
		OperationType:     record.Params.OperationType.String(),
		ExecutionSelector: record.Params.ExecutionSelector.String(),
		Message:           "0x" + hex.EncodeToString(record.Message[:]),
		Result:            hex.EncodeToString(record.Result),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"initialized":       s.engine.IsInitialized(),
		"timeLockPeriodSec": s.engine.TimeLockPeriod(),
		"pendingCount":      len(s.engine.PendingTransactionIDs()),
	})
}

func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	record, err := s.engine.GetTransaction(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, recordToJSON(record))
}

func (s *Server) handleTransactionHistory(w http.ResponseWriter, r *http.Request) {
	start, err := strconv.ParseUint(r.URL.Query().Get("start"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := strconv.ParseUint(r.URL.Query().Get("end"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid end")
		return
	}
	records, err := s.engine.TransactionHistory(start, end)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := make([]txRecordJSON, len(records))
	for i, record := range records {
		out[i] = recordToJSON(record)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePendingTransactions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"pending": s.engine.PendingTransactionIDs()})
}

func (s *Server) handleSupportedRoles(w http.ResponseWriter, r *http.Request) {
	hashes := s.engine.SupportedRoleHashes()
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.String()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

func parseRoleHash(raw string) (secureops.RoleHash, bool) {
	var hash secureops.RoleHash
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 32 {
		return hash, false
	}
	copy(hash[:], decoded)
	return hash, true
}

func (s *Server) handleRole(w http.ResponseWriter, r *http.Request) {
	hash, ok := parseRoleHash(chi.URLParam(r, "hash"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid role hash")
		return
	}
	role, err := s.engine.GetRole(hash)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":        role.Name,
		"hash":        role.Hash.String(),
		"maxWallets":  role.MaxWallets,
		"walletCount": role.WalletCount(),
		"protected":   role.Protected,
	})
}

func (s *Server) handleRoleWallets(w http.ResponseWriter, r *http.Request) {
	hash, ok := parseRoleHash(chi.URLParam(r, "hash"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid role hash")
		return
	}
	wallets, err := s.engine.AuthorizedWallets(hash)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	out := make([]string, len(wallets))
	for i, wallet := range wallets {
		out[i] = "0x" + hex.EncodeToString(wallet[:])
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"wallets": out})
}

func parseWallet(raw string) ([20]byte, bool) {
	addr, err := bloxcrypto.DecodeAddress(raw)
	if err != nil {
		return [20]byte{}, false
	}
	return addr.Word(), true
}

func (s *Server) handleWalletRoles(w http.ResponseWriter, r *http.Request) {
	wallet, ok := parseWallet(chi.URLParam(r, "address"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}
	hashes := s.engine.RolesForWallet(wallet)
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.String()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (s *Server) handleSupportedFunctions(w http.ResponseWriter, r *http.Request) {
	selectors := s.engine.SupportedFunctionSelectors()
	out := make([]string, len(selectors))
	for i, sel := range selectors {
		out[i] = sel.String()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"functions": out})
}

func (s *Server) handleFunctionSchema(w http.ResponseWriter, r *http.Request) {
	sel, err := secureops.ParseSelector(chi.URLParam(r, "selector"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid selector")
		return
	}
	schema, err := s.engine.GetFunctionSchema(sel)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	handlers := make([]string, len(schema.HandlerForSelectors))
	for i, h := range schema.HandlerForSelectors {
		handlers[i] = h.String()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"signature":           schema.Signature,
		"selector":            schema.Selector.String(),
		"operationType":       schema.OperationType.String(),
		"operationName":       schema.OperationName,
		"supportedActions":    schema.SupportedActions.Bits(),
		"protected":           schema.Protected,
		"handlerForSelectors": handlers,
	})
}

func (s *Server) handleFunctionWhitelist(w http.ResponseWriter, r *http.Request) {
	sel, err := secureops.ParseSelector(chi.URLParam(r, "selector"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid selector")
		return
	}
	targets := s.engine.WhitelistedTargets(sel)
	out := make([]string, len(targets))
	for i, target := range targets {
		out[i] = "0x" + hex.EncodeToString(target[:])
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"targets": out})
}

func (s *Server) handleOperationTypes(w http.ResponseWriter, r *http.Request) {
	types := s.engine.SupportedOperationTypes()
	out := make(map[string]string, len(types))
	for t, name := range types {
		out[t.String()] = name
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"operationTypes": out})
}

func (s *Server) handleSignerNonce(w http.ResponseWriter, r *http.Request) {
	wallet, ok := parseWallet(chi.URLParam(r, "address"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"nonce": s.engine.SignerNonce(wallet)})
}
