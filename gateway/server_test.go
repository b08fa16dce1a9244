package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowd/core/events"
	"escrowd/native/bank"
	"escrowd/native/escrow"
	"escrowd/native/fees"
	"escrowd/state"
	"escrowd/storage"
)

const (
	adminHex       = "0x00000000000000000000000000000000000000a1"
	depositorHex   = "0x0000000000000000000000000000000000000001"
	beneficiaryHex = "0x0000000000000000000000000000000000000002"
	arbiterHex     = "0x0000000000000000000000000000000000000003"
)

type fixture struct {
	srv    *httptest.Server
	ledger *bank.Ledger
	now    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: 1_700_000_000}

	admin := [20]byte{19: 0xa1}
	manager := state.NewManager(storage.NewMemDB(), admin)
	ledger := bank.NewLedger()
	recorder := events.NewRecorder()

	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetAssets(ledger)
	engine.SetAllowList(manager)
	engine.SetPauses(manager)
	engine.SetEmitter(recorder)
	engine.SetOperator([20]byte{19: 0xa2})
	engine.SetFeePolicy(fees.Policy{FeeBps: 100, Treasury: [20]byte{19: 0xa3}})
	engine.SetNowFunc(func() int64 { return f.now })

	require.NoError(t, ledger.Mint([20]byte{19: 0x01}, escrow.NativeAsset(), big.NewInt(1_000_000)))

	server := NewServer(engine, manager, recorder, nil)
	f.srv = httptest.NewServer(server.Router())
	t.Cleanup(f.srv.Close)
	f.ledger = ledger
	return f
}

func (f *fixture) do(t *testing.T, method, path, caller string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func (f *fixture) allowArbiter(t *testing.T) {
	t.Helper()
	resp, _ := f.do(t, http.MethodPost, "/v1/admin/arbiters", adminHex, allowArbiterRequest{Address: arbiterHex, Allowed: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (f *fixture) createEscrow(t *testing.T) uint64 {
	t.Helper()
	resp, payload := f.do(t, http.MethodPost, "/v1/escrows", arbiterHex, createRequest{
		Depositor:        depositorHex,
		Beneficiary:      beneficiaryHex,
		Asset:            AssetPayload{Kind: "native"},
		TotalAmount:      "1000",
		Installments:     2,
		IntervalSeconds:  86400,
		DailyInterestBps: 100,
		InterestModel:    "simple",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create: %v", payload)
	return uint64(payload["id"].(float64))
}

func TestCreateRequiresCallerHeader(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/v1/escrows", "", createRequest{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminEndpointsAreGated(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/v1/admin/arbiters", depositorHex, allowArbiterRequest{Address: arbiterHex, Allowed: true})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnlistedArbiterCannotCreate(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/v1/escrows", arbiterHex, createRequest{
		Depositor:       depositorHex,
		Beneficiary:     beneficiaryHex,
		TotalAmount:     "1000",
		Installments:    2,
		IntervalSeconds: 86400,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUnknownEscrowReturnsNotFound(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/v1/escrows/42", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.allowArbiter(t)
	id := f.createEscrow(t)
	base := fmt.Sprintf("/v1/escrows/%d", id)

	resp, record := f.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "inactive", record["state"])
	require.Equal(t, depositorHex, record["depositor"])

	resp, _ = f.do(t, http.MethodPost, base+"/start", depositorHex, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Paying before activation from a non-depositor is rejected.
	resp, _ = f.do(t, http.MethodPost, base+"/pay", beneficiaryHex, payRequest{
		Asset: AssetPayload{Kind: "native"}, Amount: "500",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	f.now += 86400
	resp, receipt := f.do(t, http.MethodPost, base+"/pay", depositorHex, payRequest{
		Asset: AssetPayload{Kind: "native"}, Amount: "500",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "pay: %v", receipt)
	require.Equal(t, "500", receipt["amountDue"])
	require.Equal(t, "0", receipt["interest"])

	// Underpaying the second installment is unprocessable.
	f.now += 86400
	resp, _ = f.do(t, http.MethodPost, base+"/pay", depositorHex, payRequest{
		Asset: AssetPayload{Kind: "native"}, Amount: "1",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, base+"/pay", depositorHex, payRequest{
		Asset: AssetPayload{Kind: "native"}, Amount: "500",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, caller := range []string{depositorHex, beneficiaryHex, arbiterHex} {
		resp, _ = f.do(t, http.MethodPost, base+"/approval", caller, approvalRequest{Approve: true})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, record = f.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "complete", record["state"])

	resp, _ = f.do(t, http.MethodPost, base+"/withdraw", beneficiaryHex, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	balance, err := f.ledger.BalanceOf([20]byte{19: 0x02}, escrow.NativeAsset())
	require.NoError(t, err)
	require.EqualValues(t, 990, balance.Int64())

	resp, balancePayload := f.do(t, http.MethodGet, base+"/balance?kind=native", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "0", balancePayload["balance"])
}

func TestDisputeConflictOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.allowArbiter(t)
	id := f.createEscrow(t)
	base := fmt.Sprintf("/v1/escrows/%d", id)

	resp, _ := f.do(t, http.MethodPost, base+"/start", depositorHex, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, base+"/dispute", beneficiaryHex, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A disputed escrow rejects withdrawal with a conflict.
	resp, _ = f.do(t, http.MethodPost, base+"/withdraw", beneficiaryHex, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, record := f.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "disputed", record["state"])
	require.Equal(t, true, record["disputed"])
}

func TestEventTrailOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.allowArbiter(t)
	id := f.createEscrow(t)

	resp, _ := f.do(t, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/start", id), depositorHex, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+fmt.Sprintf("/v1/escrows/%d/events", id), nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var trail []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&trail))
	require.Len(t, trail, 2)
	require.Equal(t, escrow.EventTypeCreated, trail[0]["type"])
	require.Equal(t, escrow.EventTypeActivated, trail[1]["type"])
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, payload := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", payload["status"])
}
