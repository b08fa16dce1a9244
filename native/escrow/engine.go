package escrow

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"escrowd/core/events"
	"escrowd/native/common"
	"escrowd/native/fees"
)

// Default timeout ladder horizons. Auto-execute opens a fixed horizon after
// creation; the operator-only emergency override opens a second, much longer
// horizon beyond that.
const (
	DefaultAutoExecuteHorizon = 90 * 24 * 60 * 60
	DefaultSettlementWindow   = 30 * 24 * 60 * 60
	DefaultEmergencyExtension = 180 * 24 * 60 * 60
	secondsPerDay             = 24 * 60 * 60
)

type engineState interface {
	NextEscrowID() (uint64, error)
	EscrowPut(*EscrowRecord) error
	EscrowGet(id uint64) (*EscrowRecord, bool)
	EscrowCredit(id uint64, asset AssetRef, amount *big.Int) error
	EscrowDebit(id uint64, asset AssetRef, amount *big.Int) error
	EscrowBalance(id uint64, asset AssetRef) (*big.Int, error)
	GuaranteePut(id uint64, entry *GuaranteeEntry) error
	GuaranteeGet(id uint64, assetKey string) (*GuaranteeEntry, bool, error)
	GuaranteeDelete(id uint64, assetKey string) error
	GuaranteeList(id uint64) ([]*GuaranteeEntry, error)
	FeeAccrue(asset AssetRef, amount *big.Int) error
	FeeBalance(asset AssetRef) (*big.Int, error)
	FeeReset(asset AssetRef) error
}

// AssetTransfer is the external capability that moves value in and out of the
// escrow vault. Every failure must surface as an explicit error; the engine
// never swallows a transfer failure.
type AssetTransfer interface {
	TransferIn(from [20]byte, asset AssetRef, amount *big.Int) error
	TransferOut(to [20]byte, asset AssetRef, amount *big.Int) error
	BalanceOf(owner [20]byte, asset AssetRef) (*big.Int, error)
}

// AllowList exposes the administrator-owned eligibility registries consulted
// at creation and guarantee time.
type AllowList interface {
	IsAssetAllowed(token string) bool
	IsItemAllowed(token string, itemID *big.Int) bool
	IsArbiterAllowed(addr [20]byte) bool
}

// Engine wires the escrow lifecycle logic with external state, the asset
// transfer capability and event emission. All entry points are atomic: a
// call either completes and mutates state or fails with no partial effect.
type Engine struct {
	state     engineState
	assets    AssetTransfer
	allowList AllowList
	pauses    common.PauseView
	emitter   events.Emitter
	feePolicy fees.Policy
	operator  [20]byte
	nowFn     func() int64

	autoExecuteHorizon int64
	settlementWindow   int64
	emergencyExtension int64

	mu         sync.Mutex
	inProgress map[uint64]bool
}

// NewEngine creates an escrow engine with a no-op emitter and the default
// timeout horizons. Callers wire the state backend, asset capability and
// allow list before use.
func NewEngine() *Engine {
	return &Engine{
		emitter:            events.NoopEmitter{},
		nowFn:              func() int64 { return time.Now().Unix() },
		autoExecuteHorizon: DefaultAutoExecuteHorizon,
		settlementWindow:   DefaultSettlementWindow,
		emergencyExtension: DefaultEmergencyExtension,
		inProgress:         make(map[uint64]bool),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets configures the asset transfer capability.
func (e *Engine) SetAssets(assets AssetTransfer) { e.assets = assets }

// SetAllowList configures the eligibility registries.
func (e *Engine) SetAllowList(list AllowList) { e.allowList = list }

// SetPauses configures the module pause view. Passing nil disables pausing.
func (e *Engine) SetPauses(pauses common.PauseView) { e.pauses = pauses }

// SetFeePolicy configures the platform fee applied to distributions.
func (e *Engine) SetFeePolicy(policy fees.Policy) { e.feePolicy = policy.Clone() }

// SetOperator configures the system operator entitled to the emergency
// timeout override and accrued fee withdrawal.
func (e *Engine) SetOperator(addr [20]byte) { e.operator = addr }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetHorizons overrides the timeout ladder horizons. Non-positive values
// keep the current setting.
func (e *Engine) SetHorizons(autoExecute, settlementWindow, emergencyExtension int64) {
	if autoExecute > 0 {
		e.autoExecuteHorizon = autoExecute
	}
	if settlementWindow > 0 {
		e.settlementWindow = settlementWindow
	}
	if emergencyExtension > 0 {
		e.emergencyExtension = emergencyExtension
	}
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event *events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

// enter acquires the per-escrow in-progress guard. A reentrant invocation
// (for example from a callee of the asset transfer capability) is rejected
// outright rather than interleaved.
func (e *Engine) enter(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inProgress[id] {
		return ErrReentrantCall
	}
	e.inProgress[id] = true
	return nil
}

func (e *Engine) leave(id uint64) {
	e.mu.Lock()
	delete(e.inProgress, id)
	e.mu.Unlock()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.assets == nil {
		return errNilAssets
	}
	if err := common.Guard(e.pauses, common.ModuleEscrow); err != nil {
		return err
	}
	return nil
}

func (e *Engine) loadEscrow(id uint64) (*EscrowRecord, error) {
	record, ok := e.state.EscrowGet(id)
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return record, nil
}

func (e *Engine) storeEscrow(record *EscrowRecord) error {
	record.LastInteraction = e.now()
	return e.state.EscrowPut(record)
}

// CreateParams bundles the validated inputs for a new escrow record. A nil
// CustomAmounts slice requests an evenly divided schedule.
type CreateParams struct {
	Depositor   [20]byte
	Beneficiary [20]byte

	PaymentAsset           AssetRef
	TotalAmount            *big.Int
	TotalInstallments      uint32
	PaymentIntervalSeconds int64
	DailyInterestRateBps   uint32
	InterestModel          InterestModel

	RequiresGuarantee    bool
	AllowPartialWithdraw bool

	CustomAmounts  []*big.Int
	CustomDueDates []int64
}

// Create validates the parameters, builds the installment schedule and
// persists a new inactive escrow record. The caller becomes the record's
// arbiter and must be an allow-listed arbiter.
func (e *Engine) Create(caller [20]byte, params CreateParams) (*EscrowRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.allowList == nil {
		return nil, errNilAllowList
	}
	if !e.allowList.IsArbiterAllowed(caller) {
		return nil, ErrArbiterNotAllowed
	}
	zero := [20]byte{}
	if params.Depositor == zero || params.Beneficiary == zero || params.Depositor == params.Beneficiary {
		return nil, ErrInvalidParties
	}
	if params.TotalAmount == nil || params.TotalAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if params.TotalInstallments == 0 {
		return nil, ErrInvalidInstallments
	}
	if params.PaymentIntervalSeconds <= 0 {
		return nil, ErrInvalidInterval
	}
	if params.DailyInterestRateBps >= 10_000 {
		return nil, ErrInterestRateTooHigh
	}
	if !params.InterestModel.Valid() {
		return nil, fmt.Errorf("escrow: invalid interest model %d", params.InterestModel)
	}
	if err := params.PaymentAsset.Validate(); err != nil {
		return nil, err
	}
	switch params.PaymentAsset.Kind {
	case AssetNative:
	case AssetFungible:
		if !e.allowList.IsAssetAllowed(params.PaymentAsset.Token) {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotAllowed, params.PaymentAsset.Token)
		}
	default:
		return nil, fmt.Errorf("%w: payment asset must be native or fungible", ErrInvalidAsset)
	}

	now := e.now()
	var schedule []*InstallmentDetail
	var err error
	if len(params.CustomAmounts) > 0 {
		if uint32(len(params.CustomAmounts)) != params.TotalInstallments {
			return nil, fmt.Errorf("%w: %d custom amounts against %d installments", ErrScheduleMismatch, len(params.CustomAmounts), params.TotalInstallments)
		}
		schedule, err = BuildCustomSchedule(params.TotalAmount, params.CustomAmounts, params.CustomDueDates)
	} else {
		schedule, err = BuildEvenSchedule(params.TotalAmount, params.TotalInstallments, now, params.PaymentIntervalSeconds)
	}
	if err != nil {
		return nil, err
	}

	id, err := e.state.NextEscrowID()
	if err != nil {
		return nil, err
	}
	record := &EscrowRecord{
		ID:                     id,
		Depositor:              params.Depositor,
		Beneficiary:            params.Beneficiary,
		Arbiter:                caller,
		State:                  EscrowInactive,
		RequiresGuarantee:      params.RequiresGuarantee,
		AllowPartialWithdraw:   params.AllowPartialWithdraw,
		PaymentAsset:           params.PaymentAsset.Clone(),
		TotalAmount:            new(big.Int).Set(params.TotalAmount),
		TotalInstallments:      params.TotalInstallments,
		PaymentIntervalSeconds: params.PaymentIntervalSeconds,
		DailyInterestRateBps:   params.DailyInterestRateBps,
		InterestModel:          params.InterestModel,
		CreatedAt:              now,
		AutoExecuteAt:          now + e.autoExecuteHorizon,
		Schedule:               schedule,
	}
	if err := e.storeEscrow(record); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(record))
	return record.Clone(), nil
}

// Start activates an inactive escrow. Only the depositor or beneficiary may
// activate, and a required guarantee must already be provided.
func (e *Engine) Start(id uint64, caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.enter(id); err != nil {
		return err
	}
	defer e.leave(id)

	record, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != record.Depositor && caller != record.Beneficiary {
		return ErrNotParty
	}
	if record.State != EscrowInactive {
		return ErrNotInactive
	}
	if record.RequiresGuarantee && !record.GuaranteeProvided {
		return ErrGuaranteeRequired
	}
	now := e.now()
	record.State = EscrowActive
	record.StartedAt = now
	record.LastPaymentAt = now
	if err := e.storeEscrow(record); err != nil {
		return err
	}
	e.emit(NewActivatedEvent(record))
	return nil
}

// SetApproval flips the caller's own approval bit. Allowed while the record
// is active or disputed; auto-completion is re-evaluated only when not
// disputed.
func (e *Engine) SetApproval(id uint64, caller [20]byte, approve bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.enter(id); err != nil {
		return err
	}
	defer e.leave(id)

	record, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if record.State != EscrowActive && record.State != EscrowDisputed {
		return ErrNotActive
	}
	switch caller {
	case record.Depositor:
		record.Approvals.Depositor = approve
	case record.Beneficiary:
		record.Approvals.Beneficiary = approve
	case record.Arbiter:
		record.Approvals.Arbiter = approve
	default:
		return ErrNotParty
	}
	if !record.Disputed {
		e.evaluateAutoCompletion(record)
	}
	if err := e.storeEscrow(record); err != nil {
		return err
	}
	e.emit(NewApprovalChangedEvent(record, caller, approve))
	if record.State == EscrowComplete {
		e.emit(NewCompletedEvent(record))
	}
	return nil
}

// evaluateAutoCompletion transitions an active, undisputed record to the
// terminal complete state when payment and consensus conditions align. It
// mutates the record only; persistence is the caller's responsibility.
func (e *Engine) evaluateAutoCompletion(record *EscrowRecord) {
	if record == nil || record.State != EscrowActive || record.Disputed {
		return
	}
	if record.InstallmentsPaid != record.TotalInstallments {
		return
	}
	if !record.Approvals.All() {
		return
	}
	record.State = EscrowComplete
}

// GetRecord returns a copy of the escrow record.
func (e *Engine) GetRecord(id uint64) (*EscrowRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// GetSchedule returns a copy of the record's installment schedule.
func (e *Engine) GetSchedule(id uint64) ([]*InstallmentDetail, error) {
	record, err := e.GetRecord(id)
	if err != nil {
		return nil, err
	}
	return record.Schedule, nil
}

// Balance returns the accounted per-escrow balance for the supplied asset.
func (e *Engine) Balance(id uint64, asset AssetRef) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok := e.state.EscrowGet(id); !ok {
		return nil, ErrEscrowNotFound
	}
	return e.state.EscrowBalance(id, asset)
}

// UnpaidInstallments returns the number of installments still outstanding.
func (e *Engine) UnpaidInstallments(id uint64) (uint32, error) {
	record, err := e.GetRecord(id)
	if err != nil {
		return 0, err
	}
	return record.UnpaidInstallments(), nil
}

// Guarantees returns copies of the guarantee ledger entries for the record.
func (e *Engine) Guarantees(id uint64) ([]*GuaranteeEntry, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok := e.state.EscrowGet(id); !ok {
		return nil, ErrEscrowNotFound
	}
	return e.state.GuaranteeList(id)
}

// AccruedFees returns the platform fees queued for pull-withdrawal in the
// supplied asset.
func (e *Engine) AccruedFees(asset AssetRef) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.FeeBalance(asset)
}
