// Package state persists escrow records, the per-escrow accounted ledger,
// the guarantee ledger, accrued platform fees and the administrator-owned
// allow lists on top of a generic key-value database.
package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"escrowd/native/escrow"
	"escrowd/storage"
)

// ErrNotAdmin is returned when a registry mutation is attempted by anyone
// other than the configured administrator.
var ErrNotAdmin = errors.New("state: caller is not the administrator")

const (
	keyEscrowSeq       = "escrow/seq"
	prefixEscrowRecord = "escrow/record/"
	prefixBalance      = "escrow/balance/"
	prefixGuarantee    = "escrow/guarantee/"
	prefixFees         = "fees/"
	prefixAllowAsset   = "allow/asset/"
	prefixAllowItem    = "allow/item/"
	prefixAllowArbiter = "allow/arbiter/"
	prefixPause        = "pause/"
)

// Manager is the state backend wired into the escrow engine. It satisfies
// the engine's state, allow-list and pause interfaces.
type Manager struct {
	mu    sync.Mutex
	db    storage.Database
	admin [20]byte
}

// NewManager constructs a state manager over the supplied database. The
// admin address is the only identity allowed to mutate the registries.
func NewManager(db storage.Database, admin [20]byte) *Manager {
	return &Manager{db: db, admin: admin}
}

func recordKey(id uint64) []byte {
	return []byte(prefixEscrowRecord + strconv.FormatUint(id, 10))
}

func balanceKey(id uint64, asset escrow.AssetRef) []byte {
	return []byte(prefixBalance + strconv.FormatUint(id, 10) + "/" + asset.Key())
}

func guaranteeKey(id uint64, assetKey string) []byte {
	return []byte(prefixGuarantee + strconv.FormatUint(id, 10) + "/" + assetKey)
}

func feeKey(asset escrow.AssetRef) []byte {
	return []byte(prefixFees + asset.Key())
}

// NextEscrowID allocates the next monotonically increasing identifier,
// starting at 1. Identifier 0 is reserved and never allocated.
func (m *Manager) NextEscrowID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next uint64 = 1
	raw, err := m.db.Get([]byte(keyEscrowSeq))
	switch {
	case err == nil:
		if len(raw) != 8 {
			return 0, fmt.Errorf("state: corrupt escrow sequence")
		}
		next = binary.BigEndian.Uint64(raw) + 1
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return 0, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := m.db.Put([]byte(keyEscrowSeq), buf); err != nil {
		return 0, err
	}
	return next, nil
}

// EscrowPut validates and persists the record.
func (m *Manager) EscrowPut(record *escrow.EscrowRecord) error {
	sanitized, err := escrow.SanitizeRecord(record)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(recordKey(sanitized.ID), raw)
}

// EscrowGet loads the record with the supplied identifier.
func (m *Manager) EscrowGet(id uint64) (*escrow.EscrowRecord, bool) {
	m.mu.Lock()
	raw, err := m.db.Get(recordKey(id))
	m.mu.Unlock()
	if err != nil {
		return nil, false
	}
	record := &escrow.EscrowRecord{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, false
	}
	return record, true
}

func (m *Manager) readBalance(key []byte) (*big.Int, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state: corrupt balance for key %s", key)
	}
	return balance, nil
}

func (m *Manager) writeBalance(key []byte, balance *big.Int) error {
	if balance.Sign() == 0 {
		return m.db.Delete(key)
	}
	return m.db.Put(key, []byte(balance.String()))
}

// EscrowCredit adds to the accounted balance for the escrow/asset pair.
func (m *Manager) EscrowCredit(id uint64, asset escrow.AssetRef, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: credit amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := balanceKey(id, asset)
	balance, err := m.readBalance(key)
	if err != nil {
		return err
	}
	return m.writeBalance(key, balance.Add(balance, amount))
}

// EscrowDebit removes from the accounted balance; every debit requires a
// sufficient prior balance.
func (m *Manager) EscrowDebit(id uint64, asset escrow.AssetRef, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: debit amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := balanceKey(id, asset)
	balance, err := m.readBalance(key)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return escrow.ErrInsufficientBalance
	}
	return m.writeBalance(key, balance.Sub(balance, amount))
}

// EscrowBalance returns the accounted balance for the escrow/asset pair.
func (m *Manager) EscrowBalance(id uint64, asset escrow.AssetRef) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBalance(balanceKey(id, asset))
}

// GuaranteePut stores a guarantee ledger entry.
func (m *Manager) GuaranteePut(id uint64, entry *escrow.GuaranteeEntry) error {
	if entry == nil {
		return fmt.Errorf("state: nil guarantee entry")
	}
	raw, err := json.Marshal(entry.Clone())
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(guaranteeKey(id, entry.Asset.Key()), raw)
}

// GuaranteeGet loads the guarantee ledger entry for the asset key.
func (m *Manager) GuaranteeGet(id uint64, assetKey string) (*escrow.GuaranteeEntry, bool, error) {
	m.mu.Lock()
	raw, err := m.db.Get(guaranteeKey(id, assetKey))
	m.mu.Unlock()
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	entry := &escrow.GuaranteeEntry{}
	if err := json.Unmarshal(raw, entry); err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// GuaranteeDelete removes the guarantee ledger entry for the asset key.
func (m *Manager) GuaranteeDelete(id uint64, assetKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete(guaranteeKey(id, assetKey))
}

// GuaranteeList returns every guarantee ledger entry for the escrow.
func (m *Manager) GuaranteeList(id uint64) ([]*escrow.GuaranteeEntry, error) {
	prefix := []byte(prefixGuarantee + strconv.FormatUint(id, 10) + "/")
	var entries []*escrow.GuaranteeEntry
	var decodeErr error
	m.mu.Lock()
	err := m.db.IteratePrefix(prefix, func(_, value []byte) bool {
		entry := &escrow.GuaranteeEntry{}
		if err := json.Unmarshal(value, entry); err != nil {
			decodeErr = err
			return false
		}
		entries = append(entries, entry)
		return true
	})
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return entries, nil
}

// FeeAccrue queues platform fees for later pull-withdrawal.
func (m *Manager) FeeAccrue(asset escrow.AssetRef, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: fee amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := feeKey(asset)
	balance, err := m.readBalance(key)
	if err != nil {
		return err
	}
	return m.writeBalance(key, balance.Add(balance, amount))
}

// FeeBalance returns the queued platform fees for the asset.
func (m *Manager) FeeBalance(asset escrow.AssetRef) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBalance(feeKey(asset))
}

// FeeReset zeroes the queued platform fees for the asset.
func (m *Manager) FeeReset(asset escrow.AssetRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete(feeKey(asset))
}

// --- allow lists and pause registry ---

// normalizeToken mirrors the canonical token form used by asset references
// so the registries match regardless of input casing.
func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func (m *Manager) flag(key []byte) bool {
	m.mu.Lock()
	ok, err := m.db.Has(key)
	m.mu.Unlock()
	return err == nil && ok
}

func (m *Manager) setFlag(caller [20]byte, key []byte, enabled bool) error {
	if caller != m.admin {
		return ErrNotAdmin
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled {
		return m.db.Put(key, []byte{1})
	}
	return m.db.Delete(key)
}

// IsAssetAllowed reports whether the fungible or item token is eligible.
func (m *Manager) IsAssetAllowed(token string) bool {
	return m.flag([]byte(prefixAllowAsset + normalizeToken(token)))
}

// IsItemAllowed reports whether the specific item of a non- or semi-fungible
// token is eligible.
func (m *Manager) IsItemAllowed(token string, itemID *big.Int) bool {
	if itemID == nil {
		return false
	}
	return m.flag([]byte(prefixAllowItem + normalizeToken(token) + "/" + itemID.String()))
}

// IsArbiterAllowed reports whether the address may create escrows.
func (m *Manager) IsArbiterAllowed(addr [20]byte) bool {
	return m.flag([]byte(prefixAllowArbiter + hex.EncodeToString(addr[:])))
}

// SetAssetAllowed mutates the asset allow list. Administrator only.
func (m *Manager) SetAssetAllowed(caller [20]byte, token string, allowed bool) error {
	return m.setFlag(caller, []byte(prefixAllowAsset+normalizeToken(token)), allowed)
}

// SetItemAllowed mutates the item allow list. Administrator only.
func (m *Manager) SetItemAllowed(caller [20]byte, token string, itemID *big.Int, allowed bool) error {
	if itemID == nil {
		return fmt.Errorf("state: item id required")
	}
	return m.setFlag(caller, []byte(prefixAllowItem+normalizeToken(token)+"/"+itemID.String()), allowed)
}

// SetArbiterAllowed mutates the arbiter allow list. Administrator only.
func (m *Manager) SetArbiterAllowed(caller, arbiter [20]byte, allowed bool) error {
	return m.setFlag(caller, []byte(prefixAllowArbiter+hex.EncodeToString(arbiter[:])), allowed)
}

// IsPaused reports whether the named module is administratively frozen.
func (m *Manager) IsPaused(module string) bool {
	return m.flag([]byte(prefixPause + module))
}

// SetPaused freezes or unfreezes the named module. Administrator only.
func (m *Manager) SetPaused(caller [20]byte, module string, paused bool) error {
	return m.setFlag(caller, []byte(prefixPause+module), paused)
}
