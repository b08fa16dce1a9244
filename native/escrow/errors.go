package escrow

import "errors"

// Validation failures: malformed creation parameters or asset references.
// The call fails entirely with no state change.
var (
	ErrInvalidParties      = errors.New("escrow: depositor and beneficiary must be distinct non-zero addresses")
	ErrInvalidAmount       = errors.New("escrow: amount must be positive")
	ErrInvalidInstallments = errors.New("escrow: installment count must be positive")
	ErrInvalidInterval     = errors.New("escrow: payment interval must be positive")
	ErrInterestRateTooHigh = errors.New("escrow: daily interest rate must be below 10000 bps")
	ErrUnevenSplit         = errors.New("escrow: total amount does not divide evenly across installments")
	ErrScheduleMismatch    = errors.New("escrow: custom schedule does not sum to total amount")
	ErrInvalidAsset        = errors.New("escrow: invalid asset reference")
	ErrAssetNotAllowed     = errors.New("escrow: asset is not allow-listed")
	ErrItemNotAllowed      = errors.New("escrow: item is not allow-listed")
	ErrArbiterNotAllowed   = errors.New("escrow: creator is not an allow-listed arbiter")
)

// Authorization failures: wrong caller for a role-gated action.
var (
	ErrNotDepositor    = errors.New("escrow: caller is not the depositor")
	ErrNotBeneficiary  = errors.New("escrow: caller is not the beneficiary")
	ErrNotParty        = errors.New("escrow: caller is not a party to the escrow")
	ErrNotArbiter      = errors.New("escrow: caller is not the escrow arbiter")
	ErrNotOperator     = errors.New("escrow: caller is not the system operator")
	ErrNotCounterparty = errors.New("escrow: only the counterparty may accept a settlement")
)

// State-precondition failures: wrong lifecycle state or already-consumed
// one-shot transitions.
var (
	ErrEscrowNotFound            = errors.New("escrow: escrow not found")
	ErrNotInactive               = errors.New("escrow: escrow already activated")
	ErrNotActive                 = errors.New("escrow: escrow is not active")
	ErrAlreadyComplete           = errors.New("escrow: escrow already complete")
	ErrNotComplete               = errors.New("escrow: escrow is not complete")
	ErrDisputed                  = errors.New("escrow: escrow is disputed")
	ErrNotDisputed               = errors.New("escrow: escrow is not disputed")
	ErrGuaranteeRequired         = errors.New("escrow: required guarantee not provided")
	ErrGuaranteeNotRequired      = errors.New("escrow: escrow does not require a guarantee")
	ErrGuaranteeAlreadyProvided  = errors.New("escrow: guarantee already provided")
	ErrGuaranteeNotFound         = errors.New("escrow: guarantee entry not found")
	ErrGuaranteeAlreadyReturned  = errors.New("escrow: guarantee already returned")
	ErrNoSettlementProposal      = errors.New("escrow: no settlement proposal")
	ErrSettlementExpired         = errors.New("escrow: settlement proposal expired")
	ErrApprovalsIncomplete       = errors.New("escrow: unanimous approval required")
	ErrAllInstallmentsPaid       = errors.New("escrow: all installments already paid")
	ErrInstallmentsOutstanding   = errors.New("escrow: installments remain unpaid")
	ErrDeadlineNotReached        = errors.New("escrow: auto-execute deadline not reached")
	ErrEmergencyWindowNotReached = errors.New("escrow: emergency timeout window not reached")
	ErrAssetMismatch             = errors.New("escrow: asset does not match the configured payment asset")
	ErrPartialWithdrawDisabled   = errors.New("escrow: partial withdrawal not permitted for this escrow")
)

// Insufficient-value failures: underpayment or distributions that exceed the
// accounted balance.
var (
	ErrInsufficientPayment        = errors.New("escrow: payment below amount due")
	ErrDistributionExceedsBalance = errors.New("escrow: distribution plus fee exceeds accounted balance")
	ErrInsufficientBalance        = errors.New("escrow: insufficient accounted balance")
)

// External-transfer and reentrancy failures.
var (
	ErrTransferFailed = errors.New("escrow: asset transfer failed")
	ErrReentrantCall  = errors.New("escrow: reentrant call rejected")
)

// Engine wiring failures.
var (
	errNilState     = errors.New("escrow engine: state not configured")
	errNilAssets    = errors.New("escrow engine: asset transfer capability not configured")
	errNilAllowList = errors.New("escrow engine: allow list not configured")
)
