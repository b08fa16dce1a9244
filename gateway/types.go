package gateway

import (
	"fmt"
	"math/big"
	"strings"

	"escrowd/native/escrow"
)

// AssetPayload is the wire form of an asset reference.
type AssetPayload struct {
	Kind   string `json:"kind"`
	Token  string `json:"token,omitempty"`
	ItemID string `json:"itemId,omitempty"`
}

func (a AssetPayload) toRef() (escrow.AssetRef, error) {
	kind := strings.ToLower(strings.TrimSpace(a.Kind))
	switch kind {
	case "", "native":
		return escrow.NativeAsset(), nil
	case "fungible":
		return escrow.FungibleAsset(a.Token), nil
	case "nft", "nonfungible":
		item, err := parseAmount(a.ItemID)
		if err != nil {
			return escrow.AssetRef{}, fmt.Errorf("itemId: %w", err)
		}
		return escrow.NonFungibleAsset(a.Token, item), nil
	case "sft", "semifungible":
		item, err := parseAmount(a.ItemID)
		if err != nil {
			return escrow.AssetRef{}, fmt.Errorf("itemId: %w", err)
		}
		return escrow.SemiFungibleAsset(a.Token, item), nil
	default:
		return escrow.AssetRef{}, fmt.Errorf("unknown asset kind %q", a.Kind)
	}
}

func assetPayload(ref escrow.AssetRef) AssetPayload {
	payload := AssetPayload{Kind: ref.Kind.String(), Token: ref.Token}
	if ref.ItemID != nil {
		payload.ItemID = ref.ItemID.String()
	}
	return payload
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

type createRequest struct {
	Depositor            string       `json:"depositor"`
	Beneficiary          string       `json:"beneficiary"`
	Asset                AssetPayload `json:"asset"`
	TotalAmount          string       `json:"totalAmount"`
	Installments         uint32       `json:"installments"`
	IntervalSeconds      int64        `json:"intervalSeconds"`
	DailyInterestBps     uint32       `json:"dailyInterestBps"`
	InterestModel        string       `json:"interestModel"`
	RequiresGuarantee    bool         `json:"requiresGuarantee"`
	AllowPartialWithdraw bool         `json:"allowPartialWithdraw"`
	CustomAmounts        []string     `json:"customAmounts,omitempty"`
	CustomDueDates       []int64      `json:"customDueDates,omitempty"`
}

type payRequest struct {
	Asset        AssetPayload `json:"asset"`
	Amount       string       `json:"amount"`
	AllRemaining bool         `json:"allRemaining,omitempty"`
}

type approvalRequest struct {
	Approve bool `json:"approve"`
}

type splitRequest struct {
	ToDepositor   string `json:"toDepositor"`
	ToBeneficiary string `json:"toBeneficiary"`
}

type emergencyRequest struct {
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
}

type guaranteeItemPayload struct {
	Asset  AssetPayload `json:"asset"`
	Amount string       `json:"amount"`
}

type guaranteeRequest struct {
	Items []guaranteeItemPayload `json:"items"`
}

type guaranteeReturnRequest struct {
	Asset AssetPayload `json:"asset"`
}

type partialWithdrawRequest struct {
	Amount string `json:"amount"`
}

type feesWithdrawRequest struct {
	Asset AssetPayload `json:"asset"`
}

type allowAssetRequest struct {
	Token   string `json:"token"`
	Allowed bool   `json:"allowed"`
}

type allowItemRequest struct {
	Token   string `json:"token"`
	ItemID  string `json:"itemId"`
	Allowed bool   `json:"allowed"`
}

type allowArbiterRequest struct {
	Address string `json:"address"`
	Allowed bool   `json:"allowed"`
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type installmentPayload struct {
	DueDate int64  `json:"dueDate"`
	Amount  string `json:"amount"`
	Paid    bool   `json:"paid"`
}

type settlementPayload struct {
	ToDepositor   string `json:"toDepositor"`
	ToBeneficiary string `json:"toBeneficiary"`
	Proposer      string `json:"proposer"`
	ProposedAt    int64  `json:"proposedAt"`
	Deadline      int64  `json:"deadline"`
}

type recordPayload struct {
	ID                    uint64               `json:"id"`
	Depositor             string               `json:"depositor"`
	Beneficiary           string               `json:"beneficiary"`
	Arbiter               string               `json:"arbiter"`
	State                 string               `json:"state"`
	RequiresGuarantee     bool                 `json:"requiresGuarantee"`
	GuaranteeProvided     bool                 `json:"guaranteeProvided"`
	AllowPartialWithdraw  bool                 `json:"allowPartialWithdraw"`
	Asset                 AssetPayload         `json:"asset"`
	TotalAmount           string               `json:"totalAmount"`
	TotalInstallments     uint32               `json:"totalInstallments"`
	InstallmentsPaid      uint32               `json:"installmentsPaid"`
	IntervalSeconds       int64                `json:"intervalSeconds"`
	DailyInterestBps      uint32               `json:"dailyInterestBps"`
	InterestModel         string               `json:"interestModel"`
	CreatedAt             int64                `json:"createdAt"`
	StartedAt             int64                `json:"startedAt"`
	LastPaymentAt         int64                `json:"lastPaymentAt"`
	AutoExecuteAt         int64                `json:"autoExecuteAt"`
	SettlementDeadline    int64                `json:"settlementDeadline,omitempty"`
	ApprovedByDepositor   bool                 `json:"approvedByDepositor"`
	ApprovedByBeneficiary bool                 `json:"approvedByBeneficiary"`
	ApprovedByArbiter     bool                 `json:"approvedByArbiter"`
	Disputed              bool                 `json:"disputed"`
	DisputeRaisedBy       string               `json:"disputeRaisedBy,omitempty"`
	Settlement            *settlementPayload   `json:"settlement,omitempty"`
	Schedule              []installmentPayload `json:"schedule"`
}

func recordToPayload(record *escrow.EscrowRecord) recordPayload {
	payload := recordPayload{
		ID:                    record.ID,
		Depositor:             addrHex(record.Depositor),
		Beneficiary:           addrHex(record.Beneficiary),
		Arbiter:               addrHex(record.Arbiter),
		State:                 record.State.String(),
		RequiresGuarantee:     record.RequiresGuarantee,
		GuaranteeProvided:     record.GuaranteeProvided,
		AllowPartialWithdraw:  record.AllowPartialWithdraw,
		Asset:                 assetPayload(record.PaymentAsset),
		TotalAmount:           record.TotalAmount.String(),
		TotalInstallments:     record.TotalInstallments,
		InstallmentsPaid:      record.InstallmentsPaid,
		IntervalSeconds:       record.PaymentIntervalSeconds,
		DailyInterestBps:      record.DailyInterestRateBps,
		InterestModel:         record.InterestModel.String(),
		CreatedAt:             record.CreatedAt,
		StartedAt:             record.StartedAt,
		LastPaymentAt:         record.LastPaymentAt,
		AutoExecuteAt:         record.AutoExecuteAt,
		SettlementDeadline:    record.SettlementDeadline,
		ApprovedByDepositor:   record.Approvals.Depositor,
		ApprovedByBeneficiary: record.Approvals.Beneficiary,
		ApprovedByArbiter:     record.Approvals.Arbiter,
		Disputed:              record.Disputed,
	}
	if record.Disputed {
		payload.DisputeRaisedBy = addrHex(record.DisputeRaisedBy)
	}
	if record.Settlement != nil {
		payload.Settlement = &settlementPayload{
			ToDepositor:   record.Settlement.AmountToDepositor.String(),
			ToBeneficiary: record.Settlement.AmountToBeneficiary.String(),
			Proposer:      addrHex(record.Settlement.Proposer),
			ProposedAt:    record.Settlement.ProposedAt,
			Deadline:      record.SettlementDeadline,
		}
	}
	payload.Schedule = make([]installmentPayload, 0, len(record.Schedule))
	for _, detail := range record.Schedule {
		payload.Schedule = append(payload.Schedule, installmentPayload{
			DueDate: detail.DueDate,
			Amount:  detail.Amount.String(),
			Paid:    detail.Paid,
		})
	}
	return payload
}
