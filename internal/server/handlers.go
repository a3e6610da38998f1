package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/w3bucket/bucket-provider/internal/access"
	"github.com/w3bucket/bucket-provider/internal/db"
	"github.com/w3bucket/bucket-provider/internal/ledger"
	"github.com/w3bucket/bucket-provider/internal/prices"
	"github.com/w3bucket/bucket-provider/internal/service"
	"github.com/w3bucket/bucket-provider/internal/settle"
	"github.com/w3bucket/bucket-provider/internal/tokens"
)

type Service interface {
	Mint(caller, owner common.Address, uri string, currency common.Address, capacityUnits, periodUnits uint64, attachedNative *big.Int) (db.Token, error)
	RenewBucket(caller common.Address, tokenID uint64, currency common.Address, capacityUnits, periodUnits uint64, attachedNative *big.Int) (db.Renewal, error)
	Burn(caller common.Address, tokenID uint64) error
	Pause(caller common.Address) error
	Unpause(caller common.Address) error
	SetUnitPrices(caller common.Address, entries []db.UnitPrice) error
	Withdraw(caller, to, currency common.Address) error
	UnitPrices() []db.UnitPrice
	Bucket(tokenID uint64) (db.Token, error)
	BucketRenewalCount(tokenID uint64) (uint64, error)
	RenewalOfBucketByIndex(tokenID, index uint64) (db.Renewal, error)
}

type priceEntry struct {
	Currency common.Address `json:"currency"`
	Price    *big.Int       `json:"price"`
}

type mintRequest struct {
	Caller         common.Address `json:"caller"`
	Owner          common.Address `json:"owner"`
	URI            string         `json:"uri"`
	Currency       common.Address `json:"currency"`
	CapacityUnits  uint64         `json:"capacity_units"`
	PeriodUnits    uint64         `json:"period_units"`
	AttachedNative *big.Int       `json:"attached_native"`
}

type renewRequest struct {
	Caller         common.Address `json:"caller"`
	TokenID        uint64         `json:"token_id"`
	Currency       common.Address `json:"currency"`
	CapacityUnits  uint64         `json:"capacity_units"`
	PeriodUnits    uint64         `json:"period_units"`
	AttachedNative *big.Int       `json:"attached_native"`
}

type bucketResponse struct {
	ID            uint64         `json:"id"`
	Owner         common.Address `json:"owner"`
	URI           string         `json:"uri"`
	Burned        bool           `json:"burned"`
	TotalCapacity uint64         `json:"total_capacity"`
	MintedAt      int64          `json:"minted_at"`
}

type renewalResponse struct {
	ID            uint64         `json:"id"`
	TokenID       uint64         `json:"token_id"`
	Currency      common.Address `json:"currency"`
	UnitPrice     *big.Int       `json:"unit_price"`
	CapacityUnits uint64         `json:"capacity_units"`
	PeriodUnits   uint64         `json:"period_units"`
	RenewedBy     common.Address `json:"renewed_by"`
	RenewedAt     int64          `json:"renewed_at"`
}

func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	list := s.svc.UnitPrices()
	entries := make([]priceEntry, 0, len(list))
	for _, p := range list {
		entries = append(entries, priceEntry{Currency: p.Currency, Price: p.Price})
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSetPrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  common.Address `json:"caller"`
		Entries []priceEntry   `json:"entries"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}

	entries := make([]db.UnitPrice, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, db.UnitPrice{Currency: e.Currency, Price: e.Price})
	}

	if err := s.svc.SetUnitPrices(req.Caller, entries); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleGetBucket(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	tok, err := s.svc.Bucket(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, bucketResponse{
		ID:            tok.ID,
		Owner:         tok.Owner,
		URI:           tok.URI,
		Burned:        tok.Status == db.TokenStatusBurned,
		TotalCapacity: tok.TotalCapacity,
		MintedAt:      tok.MintedAt,
	})
}

func (s *Server) handleGetRenewals(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if idx := r.URL.Query().Get("index"); idx != "" {
		index, err := strconv.ParseUint(idx, 10, 64)
		if err != nil {
			http.Error(w, "invalid index", http.StatusBadRequest)
			return
		}

		rec, err := s.svc.RenewalOfBucketByIndex(id, index)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, renewalToResponse(rec))
		return
	}

	count, err := s.svc.BucketRenewalCount(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Count uint64 `json:"count"`
	}{Count: count})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	tok, err := s.svc.Mint(req.Caller, req.Owner, req.URI, req.Currency, req.CapacityUnits, req.PeriodUnits, req.AttachedNative)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, bucketResponse{
		ID:            tok.ID,
		Owner:         tok.Owner,
		URI:           tok.URI,
		TotalCapacity: tok.TotalCapacity,
		MintedAt:      tok.MintedAt,
	})
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	rec, err := s.svc.RenewBucket(req.Caller, req.TokenID, req.Currency, req.CapacityUnits, req.PeriodUnits, req.AttachedNative)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, renewalToResponse(rec))
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  common.Address `json:"caller"`
		TokenID uint64         `json:"token_id"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}

	if err := s.svc.Burn(req.Caller, req.TokenID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller   common.Address `json:"caller"`
		To       common.Address `json:"to"`
		Currency common.Address `json:"currency"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}

	if err := s.svc.Withdraw(req.Caller, req.To, req.Currency); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleHalt(w, r, true)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.handleHalt(w, r, false)
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request, halt bool) {
	var req struct {
		Caller common.Address `json:"caller"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}

	var err error
	if halt {
		err = s.svc.Pause(req.Caller)
	} else {
		err = s.svc.Unpause(req.Caller)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func renewalToResponse(rec db.Renewal) renewalResponse {
	return renewalResponse{
		ID:            rec.ID,
		TokenID:       rec.TokenID,
		Currency:      rec.Currency,
		UnitPrice:     rec.UnitPrice,
		CapacityUnits: rec.CapacityUnits,
		PeriodUnits:   rec.PeriodUnits,
		RenewedBy:     rec.RenewedBy,
		RenewedAt:     rec.RenewedAt,
	}
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid bucket id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, access.ErrHalted):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidUnits), errors.Is(err, prices.ErrInvalidPrice), errors.Is(err, settle.ErrArithmeticOverflow):
		status = http.StatusBadRequest
	case errors.Is(err, settle.ErrIncorrectPayment), errors.Is(err, settle.ErrUnexpectedNativePayment), errors.Is(err, settle.ErrPaymentTransferFailed):
		status = http.StatusPaymentRequired
	case errors.Is(err, tokens.ErrInvalidToken), errors.Is(err, ledger.ErrIndexOutOfRange), errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	http.Error(w, err.Error(), status)
}
