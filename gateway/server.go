package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"escrowd/config"
	"escrowd/core/events"
	"escrowd/native/common"
	"escrowd/native/escrow"
	"escrowd/observability"
	"escrowd/state"
)

// callerHeader carries the authenticated caller address set by the fronting
// proxy. The gateway trusts it; authentication happens upstream.
const callerHeader = "X-Caller-Address"

// Server exposes the escrow engine over HTTP.
type Server struct {
	engine   *escrow.Engine
	manager  *state.Manager
	recorder *events.Recorder
	logger   *slog.Logger
	metrics  *observability.EscrowMetrics
}

// NewServer wires the HTTP surface around the engine and its state manager.
func NewServer(engine *escrow.Engine, manager *state.Manager, recorder *events.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   engine,
		manager:  manager,
		recorder: recorder,
		logger:   logger,
		metrics:  observability.Escrow(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func addrHex(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

var badRequestErrors = []error{
	escrow.ErrInvalidParties,
	escrow.ErrInvalidAmount,
	escrow.ErrInvalidInstallments,
	escrow.ErrInvalidInterval,
	escrow.ErrInterestRateTooHigh,
	escrow.ErrUnevenSplit,
	escrow.ErrScheduleMismatch,
	escrow.ErrInvalidAsset,
	escrow.ErrAssetMismatch,
}

var forbiddenErrors = []error{
	escrow.ErrNotDepositor,
	escrow.ErrNotBeneficiary,
	escrow.ErrNotParty,
	escrow.ErrNotArbiter,
	escrow.ErrNotOperator,
	escrow.ErrNotCounterparty,
	escrow.ErrAssetNotAllowed,
	escrow.ErrItemNotAllowed,
	escrow.ErrArbiterNotAllowed,
	state.ErrNotAdmin,
}

var conflictErrors = []error{
	escrow.ErrNotInactive,
	escrow.ErrNotActive,
	escrow.ErrAlreadyComplete,
	escrow.ErrNotComplete,
	escrow.ErrDisputed,
	escrow.ErrNotDisputed,
	escrow.ErrGuaranteeRequired,
	escrow.ErrGuaranteeNotRequired,
	escrow.ErrGuaranteeAlreadyProvided,
	escrow.ErrGuaranteeAlreadyReturned,
	escrow.ErrNoSettlementProposal,
	escrow.ErrSettlementExpired,
	escrow.ErrApprovalsIncomplete,
	escrow.ErrAllInstallmentsPaid,
	escrow.ErrInstallmentsOutstanding,
	escrow.ErrDeadlineNotReached,
	escrow.ErrEmergencyWindowNotReached,
	escrow.ErrPartialWithdrawDisabled,
	escrow.ErrReentrantCall,
	common.ErrModulePaused,
}

var unprocessableErrors = []error{
	escrow.ErrInsufficientPayment,
	escrow.ErrDistributionExceedsBalance,
	escrow.ErrInsufficientBalance,
	escrow.ErrTransferFailed,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, escrow.ErrEscrowNotFound),
		errors.Is(err, escrow.ErrGuaranteeNotFound):
		return http.StatusNotFound
	case matchesAny(err, forbiddenErrors):
		return http.StatusForbidden
	case matchesAny(err, conflictErrors):
		return http.StatusConflict
	case matchesAny(err, unprocessableErrors):
		return http.StatusUnprocessableEntity
	case matchesAny(err, badRequestErrors):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) caller(r *http.Request) ([20]byte, error) {
	raw := r.Header.Get(callerHeader)
	if raw == "" {
		return [20]byte{}, fmt.Errorf("missing %s header", callerHeader)
	}
	return config.ParseAddress(raw)
}

func escrowID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid escrow id %q", raw)
	}
	return id, nil
}

func decode(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// observe wraps an operation for metrics and structured logging.
func (s *Server) observe(operation string, started time.Time, err error, attrs ...any) {
	s.metrics.Observe(operation, err, started)
	if err != nil {
		s.logger.Warn(operation+" failed", append(attrs, "error", err.Error())...)
		return
	}
	s.logger.Info(operation, attrs...)
}

func queryAsset(r *http.Request) (escrow.AssetRef, error) {
	q := r.URL.Query()
	return AssetPayload{
		Kind:   q.Get("kind"),
		Token:  q.Get("token"),
		ItemID: q.Get("item"),
	}.toRef()
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	caller, err := s.caller(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req createRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	params, err := s.createParams(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	record, err := s.engine.Create(caller, params)
	s.observe("create", started, err, "caller", addrHex(caller))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, recordToPayload(record))
}

func (s *Server) createParams(req createRequest) (escrow.CreateParams, error) {
	var params escrow.CreateParams
	depositor, err := config.ParseAddress(req.Depositor)
	if err != nil {
		return params, fmt.Errorf("depositor: %w", err)
	}
	beneficiary, err := config.ParseAddress(req.Beneficiary)
	if err != nil {
		return params, fmt.Errorf("beneficiary: %w", err)
	}
	asset, err := req.Asset.toRef()
	if err != nil {
		return params, fmt.Errorf("asset: %w", err)
	}
	total, err := parseAmount(req.TotalAmount)
	if err != nil {
		return params, fmt.Errorf("totalAmount: %w", err)
	}
	model := escrow.InterestSimple
	switch req.InterestModel {
	case "", "simple":
	case "compound":
		model = escrow.InterestCompound
	default:
		return params, fmt.Errorf("unknown interest model %q", req.InterestModel)
	}
	params = escrow.CreateParams{
		Depositor:              depositor,
		Beneficiary:            beneficiary,
		PaymentAsset:           asset,
		TotalAmount:            total,
		TotalInstallments:      req.Installments,
		PaymentIntervalSeconds: req.IntervalSeconds,
		DailyInterestRateBps:   req.DailyInterestBps,
		InterestModel:          model,
		RequiresGuarantee:      req.RequiresGuarantee,
		AllowPartialWithdraw:   req.AllowPartialWithdraw,
		CustomDueDates:         req.CustomDueDates,
	}
	for i, raw := range req.CustomAmounts {
		amount, err := parseAmount(raw)
		if err != nil {
			return params, fmt.Errorf("customAmounts[%d]: %w", i, err)
		}
		params.CustomAmounts = append(params.CustomAmounts, amount)
	}
	return params, nil
}

// action adapts the common "caller + escrow id" engine operations.
func (s *Server) action(operation string, fn func(id uint64, caller [20]byte) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		caller, err := s.caller(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		id, err := escrowID(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		err = fn(id, caller)
		s.observe(operation, started, err, "escrow", id, "caller", addrHex(caller))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	caller, err := s.caller(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	id, err := escrowID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req payRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	asset, err := req.Asset.toRef()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var receipt *escrow.PaymentReceipt
	operation := "pay_installment"
	if req.AllRemaining {
		operation = "pay_all_remaining"
		receipt, err = s.engine.PayAllRemaining(id, caller, asset, amount)
	} else {
		receipt, err = s.engine.PayInstallment(id, caller, asset, amount)
	}
	s.observe(operation, started, err, "escrow", id, "caller", addrHex(caller))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"installmentsCovered": receipt.InstallmentsCovered,
		"baseAmount":          receipt.BaseAmount.String(),
		"interest":            receipt.Interest.String(),
		"amountDue":           receipt.AmountDue.String(),
		"refunded":            receipt.Refunded.String(),
	})
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.action("set_approval", func(id uint64, caller [20]byte) error {
		return s.engine.SetApproval(id, caller, req.Approve)
	})(w, r)
}

func (s *Server) splitHandler(operation string, fn func(id uint64, caller [20]byte, toDepositor, toBeneficiary *big.Int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req splitRequest
		if err := decode(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		toDepositor, err := parseAmount(req.ToDepositor)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("toDepositor: %v", err)})
			return
		}
		toBeneficiary, err := parseAmount(req.ToBeneficiary)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("toBeneficiary: %v", err)})
			return
		}
		s.action(operation, func(id uint64, caller [20]byte) error {
			return fn(id, caller, toDepositor, toBeneficiary)
		})(w, r)
	}
}

func (s *Server) handlePartialWithdraw(w http.ResponseWriter, r *http.Request) {
	var req partialWithdrawRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.action("partial_withdraw", func(id uint64, caller [20]byte) error {
		return s.engine.PartialWithdraw(id, caller, amount)
	})(w, r)
}

func (s *Server) handleGuarantee(w http.ResponseWriter, r *http.Request) {
	var req guaranteeRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	items := make([]escrow.GuaranteeItem, 0, len(req.Items))
	for i, item := range req.Items {
		asset, err := item.Asset.toRef()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("items[%d].asset: %v", i, err)})
			return
		}
		amount, err := parseAmount(item.Amount)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("items[%d].amount: %v", i, err)})
			return
		}
		items = append(items, escrow.GuaranteeItem{Asset: asset, Amount: amount})
	}
	s.action("provide_guarantee", func(id uint64, caller [20]byte) error {
		return s.engine.ProvideGuarantee(id, caller, items)
	})(w, r)
}

func (s *Server) handleGuaranteeReturn(w http.ResponseWriter, r *http.Request) {
	var req guaranteeReturnRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	asset, err := req.Asset.toRef()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.action("return_guarantee", func(id uint64, caller [20]byte) error {
		return s.engine.ReturnGuarantee(id, caller, asset)
	})(w, r)
}

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	var req emergencyRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	recipient, err := config.ParseAddress(req.Recipient)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("recipient: %v", err)})
		return
	}
	s.action("emergency_timeout", func(id uint64, caller [20]byte) error {
		return s.engine.EmergencyTimeout(id, caller, recipient, req.Reason)
	})(w, r)
}

func (s *Server) handleFeesWithdraw(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	caller, err := s.caller(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var req feesWithdrawRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	asset, err := req.Asset.toRef()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	amount, err := s.engine.WithdrawFees(caller, asset)
	s.observe("withdraw_fees", started, err, "caller", addrHex(caller))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := escrowID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	record, err := s.engine.GetRecord(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordToPayload(record))
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := escrowID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	schedule, err := s.engine.GetSchedule(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := make([]installmentPayload, 0, len(schedule))
	for _, detail := range schedule {
		payload = append(payload, installmentPayload{
			DueDate: detail.DueDate,
			Amount:  detail.Amount.String(),
			Paid:    detail.Paid,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := escrowID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	asset, err := queryAsset(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	balance, err := s.engine.Balance(id, asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

func (s *Server) handleGetUnpaid(w http.ResponseWriter, r *http.Request) {
	id, err := escrowID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	unpaid, err := s.engine.UnpaidInstallments(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"unpaid": unpaid})
}

func (s *Server) handleGetGuarantees(w http.ResponseWriter, r *http.Request) {
	id, err := escrowID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	entries, err := s.engine.Guarantees(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, map[string]any{
			"asset":    assetPayload(entry.Asset),
			"amount":   entry.Amount.String(),
			"returned": entry.Returned,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := escrowID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if s.recorder == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	matched := s.recorder.Filter("id", strconv.FormatUint(id, 10))
	payload := make([]map[string]any, 0, len(matched))
	for _, evt := range matched {
		payload = append(payload, map[string]any{
			"type":       evt.Type,
			"attributes": evt.Attributes,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	asset, err := queryAsset(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	accrued, err := s.engine.AccruedFees(asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accrued": accrued.String()})
}

func (s *Server) admin(operation string, fn func(caller [20]byte, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		caller, err := s.caller(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		err = fn(caller, r)
		s.observe(operation, started, err, "caller", addrHex(caller))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleAllowAsset(caller [20]byte, r *http.Request) error {
	var req allowAssetRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	return s.manager.SetAssetAllowed(caller, req.Token, req.Allowed)
}

func (s *Server) handleAllowItem(caller [20]byte, r *http.Request) error {
	var req allowItemRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	itemID, err := parseAmount(req.ItemID)
	if err != nil {
		return fmt.Errorf("itemId: %w", err)
	}
	return s.manager.SetItemAllowed(caller, req.Token, itemID, req.Allowed)
}

func (s *Server) handleAllowArbiter(caller [20]byte, r *http.Request) error {
	var req allowArbiterRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	arbiter, err := config.ParseAddress(req.Address)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	return s.manager.SetArbiterAllowed(caller, arbiter, req.Allowed)
}

func (s *Server) handlePause(caller [20]byte, r *http.Request) error {
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	return s.manager.SetPaused(caller, req.Module, req.Paused)
}
