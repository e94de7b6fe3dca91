package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"arbvault/core"
	"arbvault/crypto"
	"arbvault/native/router"
	"arbvault/native/vault"
	"arbvault/observability/audit"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

var statusByCode = map[string]int{
	"unauthorized":          http.StatusForbidden,
	"unauthorized_transfer": http.StatusForbidden,
	"invalid_authority":     http.StatusForbidden,
	"not_initialized":       http.StatusNotFound,
	"already_initialized":   http.StatusConflict,
	"module_paused":         http.StatusServiceUnavailable,
	"canceled":              http.StatusServiceUnavailable,
	"deadline_exceeded":     http.StatusGatewayTimeout,
	core.CodeInternal:       http.StatusInternalServerError,
}

// writeError maps a node error onto its stable code. Rejections by the
// modules that are not listed above are 422.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := core.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "requestId", RequestIDFromContext(r.Context()), "error", err)
		message = "internal error"
	}
	writeErrorCode(w, status, code, message)
}

func badRequest(w http.ResponseWriter, format string, args ...interface{}) {
	writeErrorCode(w, http.StatusBadRequest, "bad_request", fmt.Sprintf(format, args...))
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		badRequest(w, "decode request: %v", err)
		return false
	}
	return true
}

func signer(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, ok := SignerFromContext(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "unauthenticated", "signer unavailable")
	}
	return addr, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	head := s.node.Runtime().Head()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"height": head.Height,
		"root":   head.Root.Hex(),
	})
}

type venueView struct {
	Tag     router.VenueTag `json:"tag"`
	Program crypto.Address  `json:"program"`
}

type routerView struct {
	Program      crypto.Address  `json:"program"`
	Authority    crypto.Address  `json:"authority"`
	FeeRateBps   uint16          `json:"feeRateBps"`
	TotalVolume  uint64          `json:"totalVolume"`
	FeeCollector *crypto.Address `json:"feeCollector,omitempty"`
	Venues       []venueView     `json:"venues"`
}

func (s *Server) routerView(st *router.RouterState) routerView {
	engine := s.node.Router()
	view := routerView{
		Program:     engine.Program(),
		Authority:   st.Authority,
		FeeRateBps:  st.FeeRateBps,
		TotalVolume: st.TotalVolume,
	}
	if !st.FeeCollector.IsZero() {
		collector := st.FeeCollector
		view.FeeCollector = &collector
	}
	for _, entry := range engine.Venues().Entries() {
		view.Venues = append(view.Venues, venueView{Tag: entry.Tag, Program: entry.Program})
	}
	return view
}

func (s *Server) handleRouterState(w http.ResponseWriter, r *http.Request) {
	st, err := s.node.RouterState(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.routerView(st))
}

type routerInitRequest struct {
	FeeRateBps   uint16          `json:"feeRateBps"`
	FeeCollector *crypto.Address `json:"feeCollector,omitempty"`
}

func (s *Server) handleRouterInit(w http.ResponseWriter, r *http.Request) {
	authority, ok := signer(w, r)
	if !ok {
		return
	}
	var req routerInitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var collector crypto.Address
	if req.FeeCollector != nil {
		collector = *req.FeeCollector
	}
	st, err := s.node.InitializeRouter(r.Context(), authority, req.FeeRateBps, collector)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.routerView(st))
}

type routerFeeRequest struct {
	FeeRateBps uint16 `json:"feeRateBps"`
}

func (s *Server) handleRouterFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := signer(w, r)
	if !ok {
		return
	}
	var req routerFeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := s.node.SetRouterFeeRate(r.Context(), caller, req.FeeRateBps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.routerView(st))
}

type swapsRequest struct {
	Swaps []router.SwapInstruction `json:"swaps"`
}

func (s *Server) handleSwaps(w http.ResponseWriter, r *http.Request) {
	source, ok := signer(w, r)
	if !ok {
		return
	}
	var req swapsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.node.ExecuteSwaps(r.Context(), source, req.Swaps)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type estimateRequest struct {
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
	AmountIn uint64 `json:"amountIn"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	info, err := s.node.EstimateRoute(r.Context(), req.TokenIn, req.TokenOut, req.AmountIn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type vaultView struct {
	Program          crypto.Address `json:"program"`
	Account          crypto.Address `json:"account"`
	Authority        crypto.Address `json:"authority"`
	AuthorizedRouter crypto.Address `json:"authorizedRouter"`
	Asset            string         `json:"asset"`
	TotalShares      uint64         `json:"totalShares"`
	Balance          uint64         `json:"balance"`
}

func (s *Server) vaultView(r *http.Request, st *vault.VaultState) (vaultView, error) {
	engine := s.node.Vault()
	balance, err := s.node.Balance(r.Context(), engine.Account(), st.Asset)
	if err != nil {
		return vaultView{}, err
	}
	return vaultView{
		Program:          engine.Program(),
		Account:          engine.Account(),
		Authority:        st.Authority,
		AuthorizedRouter: st.AuthorizedRouter,
		Asset:            st.Asset,
		TotalShares:      st.TotalShares,
		Balance:          balance,
	}, nil
}

func (s *Server) handleVaultState(w http.ResponseWriter, r *http.Request) {
	st, err := s.node.VaultState(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.vaultView(r, st)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type vaultInitRequest struct {
	Router *crypto.Address `json:"router,omitempty"`
	Asset  string          `json:"asset"`
}

func (s *Server) handleVaultInit(w http.ResponseWriter, r *http.Request) {
	authority, ok := signer(w, r)
	if !ok {
		return
	}
	var req vaultInitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var routerProgram crypto.Address
	if req.Router != nil {
		routerProgram = *req.Router
	}
	st, err := s.node.InitializeVault(r.Context(), authority, routerProgram, req.Asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.vaultView(r, st)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	owner, ok := signer(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.node.Deposit(r.Context(), owner, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type withdrawRequest struct {
	Shares uint64 `json:"shares"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	owner, ok := signer(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.node.Withdraw(r.Context(), owner, req.Shares)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type arbitrageRequest struct {
	Router    *crypto.Address          `json:"router,omitempty"`
	Swaps     []router.SwapInstruction `json:"swaps"`
	MinProfit uint64                   `json:"minProfit"`
}

func (s *Server) handleArbitrage(w http.ResponseWriter, r *http.Request) {
	executor, ok := signer(w, r)
	if !ok {
		return
	}
	var req arbitrageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	routerProgram := s.node.Router().Program()
	if req.Router != nil {
		routerProgram = *req.Router
	}
	res, err := s.node.ExecuteArbitrage(r.Context(), executor, routerProgram, req.Swaps, req.MinProfit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func pathAddress(w http.ResponseWriter, r *http.Request, param string) (crypto.Address, bool) {
	raw := chi.URLParam(r, param)
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		badRequest(w, "%s: %v", param, err)
		return crypto.Address{}, false
	}
	return addr, true
}

type positionView struct {
	Owner  crypto.Address `json:"owner"`
	Shares uint64         `json:"shares"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathAddress(w, r, "owner")
	if !ok {
		return
	}
	pos, err := s.node.Position(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionView{Owner: owner, Shares: pos.Shares})
}

type balanceView struct {
	Address crypto.Address `json:"address"`
	Token   string         `json:"token"`
	Balance uint64         `json:"balance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	token := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "token")))
	balance, err := s.node.Balance(r.Context(), addr, token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{Address: addr, Token: token, Balance: balance})
}

type eventsView struct {
	Events []audit.Record `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := audit.Filter{Type: strings.TrimSpace(query.Get("type"))}
	if raw := query.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(w, "after: %v", err)
			return
		}
		filter.After = after
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		if limit > 1000 {
			limit = 1000
		}
		filter.Limit = limit
	}
	if s.events == nil {
		writeJSON(w, http.StatusOK, eventsView{Events: []audit.Record{}})
		return
	}
	records, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsView{Events: records})
}
