package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"escrowd/core/events"
)

const (
	EventTypeCreated            = "escrow.created"
	EventTypeActivated          = "escrow.activated"
	EventTypeGuaranteeProvided  = "escrow.guarantee_provided"
	EventTypeGuaranteeReturned  = "escrow.guarantee_returned"
	EventTypeInstallmentPaid    = "escrow.installment_paid"
	EventTypeApprovalChanged    = "escrow.approval_changed"
	EventTypeCompleted          = "escrow.completed"
	EventTypeDisputeOpened      = "escrow.dispute_opened"
	EventTypeDisputeResolved    = "escrow.dispute_resolved"
	EventTypeSettlementProposed = "escrow.settlement_proposed"
	EventTypeSettlementAccepted = "escrow.settlement_accepted"
	EventTypeWithdrawn          = "escrow.withdrawn"
	EventTypeAutoExecuted       = "escrow.auto_executed"
	EventTypeEmergencyTimeout   = "escrow.emergency_timeout"
	EventTypeFeesWithdrawn      = "escrow.fees_withdrawn"
)

func baseAttributes(record *EscrowRecord) map[string]string {
	attrs := make(map[string]string)
	if record == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(record.ID, 10)
	attrs["state"] = record.State.String()
	attrs["asset"] = record.PaymentAsset.Key()
	attrs["lastInteraction"] = strconv.FormatInt(record.LastInteraction, 10)
	return attrs
}

func addrHex(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

func amountStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewCreatedEvent returns the canonical payload for a newly created record.
func NewCreatedEvent(record *EscrowRecord) *events.Event {
	attrs := baseAttributes(record)
	if record != nil {
		attrs["depositor"] = addrHex(record.Depositor)
		attrs["beneficiary"] = addrHex(record.Beneficiary)
		attrs["arbiter"] = addrHex(record.Arbiter)
		attrs["totalAmount"] = amountStr(record.TotalAmount)
		attrs["installments"] = strconv.FormatUint(uint64(record.TotalInstallments), 10)
		attrs["interestModel"] = record.InterestModel.String()
		attrs["dailyInterestBps"] = strconv.FormatUint(uint64(record.DailyInterestRateBps), 10)
		attrs["requiresGuarantee"] = strconv.FormatBool(record.RequiresGuarantee)
		attrs["autoExecuteAt"] = strconv.FormatInt(record.AutoExecuteAt, 10)
		attrs["createdAt"] = strconv.FormatInt(record.CreatedAt, 10)
	}
	return &events.Event{Type: EventTypeCreated, Attributes: attrs}
}

// NewActivatedEvent returns the payload emitted on activation.
func NewActivatedEvent(record *EscrowRecord) *events.Event {
	attrs := baseAttributes(record)
	if record != nil {
		attrs["startedAt"] = strconv.FormatInt(record.StartedAt, 10)
	}
	return &events.Event{Type: EventTypeActivated, Attributes: attrs}
}

// NewGuaranteeProvidedEvent returns the payload emitted when the guarantee
// vault is funded.
func NewGuaranteeProvidedEvent(record *EscrowRecord, items []GuaranteeItem) *events.Event {
	attrs := baseAttributes(record)
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Asset.Key()+"="+amountStr(item.Amount))
	}
	attrs["guarantee"] = strings.Join(keys, ",")
	return &events.Event{Type: EventTypeGuaranteeProvided, Attributes: attrs}
}

// NewGuaranteeReturnedEvent returns the payload emitted when a collateral
// position is returned to the depositor.
func NewGuaranteeReturnedEvent(record *EscrowRecord, asset AssetRef, amount *big.Int) *events.Event {
	attrs := baseAttributes(record)
	attrs["guaranteeAsset"] = asset.Key()
	attrs["amount"] = amountStr(amount)
	return &events.Event{Type: EventTypeGuaranteeReturned, Attributes: attrs}
}

// NewInstallmentPaidEvent returns the payload for a settled installment,
// including the interest breakdown and refunded excess.
func NewInstallmentPaidEvent(record *EscrowRecord, receipt *PaymentReceipt) *events.Event {
	attrs := baseAttributes(record)
	if record != nil {
		attrs["installmentsPaid"] = strconv.FormatUint(uint64(record.InstallmentsPaid), 10)
		attrs["lastPaymentAt"] = strconv.FormatInt(record.LastPaymentAt, 10)
	}
	if receipt != nil {
		attrs["covered"] = strconv.FormatUint(uint64(receipt.InstallmentsCovered), 10)
		attrs["base"] = amountStr(receipt.BaseAmount)
		attrs["interest"] = amountStr(receipt.Interest)
		attrs["due"] = amountStr(receipt.AmountDue)
		attrs["refunded"] = amountStr(receipt.Refunded)
	}
	return &events.Event{Type: EventTypeInstallmentPaid, Attributes: attrs}
}

// NewApprovalChangedEvent returns the payload for an approval toggle.
func NewApprovalChangedEvent(record *EscrowRecord, party [20]byte, approved bool) *events.Event {
	attrs := baseAttributes(record)
	attrs["party"] = addrHex(party)
	attrs["approved"] = strconv.FormatBool(approved)
	return &events.Event{Type: EventTypeApprovalChanged, Attributes: attrs}
}

// NewCompletedEvent returns the payload emitted when consensus and payment
// conditions auto-complete the escrow.
func NewCompletedEvent(record *EscrowRecord) *events.Event {
	return &events.Event{Type: EventTypeCompleted, Attributes: baseAttributes(record)}
}

// NewDisputeOpenedEvent returns the payload emitted when a party raises a
// dispute.
func NewDisputeOpenedEvent(record *EscrowRecord) *events.Event {
	attrs := baseAttributes(record)
	if record != nil {
		attrs["raisedBy"] = addrHex(record.DisputeRaisedBy)
	}
	return &events.Event{Type: EventTypeDisputeOpened, Attributes: attrs}
}

// NewDisputeResolvedEvent returns the payload for an arbitrated resolution.
func NewDisputeResolvedEvent(record *EscrowRecord, toDepositor, toBeneficiary, fee *big.Int) *events.Event {
	attrs := baseAttributes(record)
	attrs["toDepositor"] = amountStr(toDepositor)
	attrs["toBeneficiary"] = amountStr(toBeneficiary)
	attrs["fee"] = amountStr(fee)
	return &events.Event{Type: EventTypeDisputeResolved, Attributes: attrs}
}

// NewSettlementProposedEvent returns the payload for a voluntary settlement
// proposal.
func NewSettlementProposedEvent(record *EscrowRecord) *events.Event {
	attrs := baseAttributes(record)
	if record != nil && record.Settlement != nil {
		attrs["proposer"] = addrHex(record.Settlement.Proposer)
		attrs["toDepositor"] = amountStr(record.Settlement.AmountToDepositor)
		attrs["toBeneficiary"] = amountStr(record.Settlement.AmountToBeneficiary)
		attrs["deadline"] = strconv.FormatInt(record.SettlementDeadline, 10)
	}
	return &events.Event{Type: EventTypeSettlementProposed, Attributes: attrs}
}

// NewSettlementAcceptedEvent returns the payload emitted when the
// counterparty accepts a proposal.
func NewSettlementAcceptedEvent(record *EscrowRecord, acceptor [20]byte, toDepositor, toBeneficiary, fee *big.Int) *events.Event {
	attrs := baseAttributes(record)
	attrs["acceptor"] = addrHex(acceptor)
	attrs["toDepositor"] = amountStr(toDepositor)
	attrs["toBeneficiary"] = amountStr(toBeneficiary)
	attrs["fee"] = amountStr(fee)
	return &events.Event{Type: EventTypeSettlementAccepted, Attributes: attrs}
}

// NewWithdrawnEvent returns the payload for a full or partial withdrawal.
func NewWithdrawnEvent(record *EscrowRecord, net, fee *big.Int, partial bool) *events.Event {
	attrs := baseAttributes(record)
	attrs["net"] = amountStr(net)
	attrs["fee"] = amountStr(fee)
	attrs["partial"] = strconv.FormatBool(partial)
	return &events.Event{Type: EventTypeWithdrawn, Attributes: attrs}
}

// NewAutoExecutedEvent returns the payload for a deadline-forced execution.
func NewAutoExecutedEvent(record *EscrowRecord, caller [20]byte, net, fee *big.Int) *events.Event {
	attrs := baseAttributes(record)
	attrs["caller"] = addrHex(caller)
	attrs["net"] = amountStr(net)
	attrs["fee"] = amountStr(fee)
	return &events.Event{Type: EventTypeAutoExecuted, Attributes: attrs}
}

// NewEmergencyTimeoutEvent returns the payload for the operator escape
// hatch, including the recorded justification.
func NewEmergencyTimeoutEvent(record *EscrowRecord, recipient [20]byte, net, fee *big.Int, reason string) *events.Event {
	attrs := baseAttributes(record)
	attrs["recipient"] = addrHex(recipient)
	attrs["net"] = amountStr(net)
	attrs["fee"] = amountStr(fee)
	attrs["reason"] = strings.TrimSpace(reason)
	return &events.Event{Type: EventTypeEmergencyTimeout, Attributes: attrs}
}

// NewFeesWithdrawnEvent returns the payload emitted when accrued fees are
// pulled to the treasury.
func NewFeesWithdrawnEvent(asset AssetRef, amount *big.Int) *events.Event {
	attrs := map[string]string{
		"asset":  asset.Key(),
		"amount": amountStr(amount),
	}
	return &events.Event{Type: EventTypeFeesWithdrawn, Attributes: attrs}
}
