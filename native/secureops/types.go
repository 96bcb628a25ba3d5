package secureops

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Selector identifies a function, derived from the first four bytes of the
// keccak256 hash of its human-readable signature.
type Selector [4]byte

// SelectorFromSignature derives the canonical selector for a signature such
// as "transferOwnership(address)".
func SelectorFromSignature(signature string) Selector {
	var sel Selector
	copy(sel[:], ethcrypto.Keccak256([]byte(signature))[:4])
	return sel
}

// ParseSelector decodes a selector from its 0x-prefixed hex form.
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return sel, fmt.Errorf("secureops: invalid selector %q: %w", s, err)
	}
	if len(raw) != len(sel) {
		return sel, fmt.Errorf("secureops: selector must be 4 bytes, got %d", len(raw))
	}
	copy(sel[:], raw)
	return sel, nil
}

func (s Selector) String() string {
	return "0x" + hex.EncodeToString(s[:])
}

// IsZero reports whether the selector is unset.
func (s Selector) IsZero() bool { return s == Selector{} }

// RoleHash is the 32-byte identifier of a role, derived from its name.
type RoleHash [32]byte

// RoleHashFromName derives a role's identifier from its human-readable name.
func RoleHashFromName(name string) RoleHash {
	var h RoleHash
	copy(h[:], ethcrypto.Keccak256([]byte(name)))
	return h
}

func (h RoleHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// OperationType groups related function schemas under one 32-byte tag.
type OperationType [32]byte

// OperationTypeFromName derives the operation type tag from its name.
func OperationTypeFromName(name string) OperationType {
	var t OperationType
	copy(t[:], ethcrypto.Keccak256([]byte(name)))
	return t
}

func (t OperationType) String() string {
	return "0x" + hex.EncodeToString(t[:])
}

// Names of the protected system roles populated at initialization.
const (
	OwnerRoleName       = "OWNER_ROLE"
	BroadcasterRoleName = "BROADCASTER_ROLE"
	RecoveryRoleName    = "RECOVERY_ROLE"
)

// TxStatus tracks a transaction through the secure-operation state machine.
type TxStatus uint8

const (
	// TxStatusUndefined is the zero value; it is never externally observable
	// because records are created directly in the pending state.
	TxStatusUndefined TxStatus = iota
	// TxStatusPending marks a requested transaction awaiting approval or
	// cancellation.
	TxStatusPending
	// TxStatusCompleted marks a transaction whose execution succeeded.
	TxStatusCompleted
	// TxStatusCancelled marks a transaction cancelled before execution.
	TxStatusCancelled
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusUndefined:
		return "UNDEFINED"
	case TxStatusPending:
		return "PENDING"
	case TxStatusCompleted:
		return "COMPLETED"
	case TxStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// Terminal reports whether the status permits no further transitions.
func (s TxStatus) Terminal() bool {
	return s == TxStatusCompleted || s == TxStatusCancelled
}

// PaymentDetails carries an optional payment attached to a transaction:
// a native amount, a token amount, or both, paid to Recipient on execution.
type PaymentDetails struct {
	Recipient    [20]byte
	NativeAmount *big.Int
	Token        [20]byte
	TokenAmount  *big.Int
}

// Clone returns a deep copy of the payment details.
func (p PaymentDetails) Clone() PaymentDetails {
	clone := p
	if p.NativeAmount != nil {
		clone.NativeAmount = new(big.Int).Set(p.NativeAmount)
	}
	if p.TokenAmount != nil {
		clone.TokenAmount = new(big.Int).Set(p.TokenAmount)
	}
	return clone
}

// TxParams captures the immutable intent of a requested transaction.
type TxParams struct {
	Requester         [20]byte
	Target            [20]byte
	Value             *big.Int
	GasLimit          uint64
	OperationType     OperationType
	ExecutionSelector Selector
	ExecutionParams   []byte
}

// Clone returns a deep copy of the parameters.
func (p TxParams) Clone() TxParams {
	clone := p
	if p.Value != nil {
		clone.Value = new(big.Int).Set(p.Value)
	}
	clone.ExecutionParams = append([]byte(nil), p.ExecutionParams...)
	return clone
}

// TxRecord is a single transaction under the state machine. Once a record
// reaches a terminal status it becomes an immutable ledger entry.
type TxRecord struct {
	TxID        uint64
	ReleaseTime int64
	Status      TxStatus
	Params      TxParams
	Message     [32]byte
	Result      []byte
	Payment     PaymentDetails
}

// Clone returns a deep copy of the record to keep ledger entries immutable
// from the caller's perspective.
func (r *TxRecord) Clone() *TxRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Params = r.Params.Clone()
	clone.Payment = r.Payment.Clone()
	clone.Result = append([]byte(nil), r.Result...)
	return &clone
}

// MetaTxParams binds a signed intent to one handler on one contract on one
// chain, with replay protection via the signer's nonce.
type MetaTxParams struct {
	ChainID         uint64
	Nonce           uint64
	HandlerContract [20]byte
	HandlerSelector Selector
	Action          Action
	Deadline        int64
	MaxGasPrice     *big.Int
	Signer          [20]byte
}

// Clone returns a deep copy of the parameters.
func (p MetaTxParams) Clone() MetaTxParams {
	clone := p
	if p.MaxGasPrice != nil {
		clone.MaxGasPrice = new(big.Int).Set(p.MaxGasPrice)
	}
	return clone
}

// MetaTransaction wraps a transaction record (new or existing) with the
// meta parameters, the canonical digest and the signature over it.
type MetaTransaction struct {
	TxRecord  TxRecord
	Params    MetaTxParams
	Message   [32]byte
	Signature []byte
}

// Clone returns a deep copy of the meta-transaction.
func (m *MetaTransaction) Clone() *MetaTransaction {
	if m == nil {
		return nil
	}
	clone := *m
	clone.TxRecord = *m.TxRecord.Clone()
	clone.Params = m.Params.Clone()
	clone.Signature = append([]byte(nil), m.Signature...)
	return &clone
}

// FunctionSchema describes one registered function: its selector, the
// operation type grouping it, the actions it supports and the handler
// selectors permitted to drive it.
type FunctionSchema struct {
	Signature           string
	Selector            Selector
	OperationType       OperationType
	OperationName       string
	SupportedActions    ActionSet
	Protected           bool
	HandlerForSelectors []Selector
}

// Clone returns a deep copy of the schema.
func (s *FunctionSchema) Clone() *FunctionSchema {
	if s == nil {
		return nil
	}
	clone := *s
	clone.HandlerForSelectors = append([]Selector(nil), s.HandlerForSelectors...)
	return &clone
}

// HandlesSelector reports whether the schema's handler relationship permits
// the given handler selector to drive it.
func (s *FunctionSchema) HandlesSelector(handler Selector) bool {
	for _, sel := range s.HandlerForSelectors {
		if sel == handler {
			return true
		}
	}
	return false
}

// FunctionPermission grants a role a subset of a schema's supported actions.
type FunctionPermission struct {
	Selector            Selector
	GrantedActions      ActionSet
	HandlerForSelectors []Selector
}

// Clone returns a deep copy of the permission.
func (p FunctionPermission) Clone() FunctionPermission {
	clone := p
	clone.HandlerForSelectors = append([]Selector(nil), p.HandlerForSelectors...)
	return clone
}

// Role maps a named capability to its authorized wallets and per-function
// permissions. Wallet order is stable so indexed lookups survive churn.
type Role struct {
	Name        string
	Hash        RoleHash
	MaxWallets  uint32
	Protected   bool
	Wallets     [][20]byte
	Permissions map[Selector]FunctionPermission
}

// Clone returns a deep copy of the role.
func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Wallets = make([][20]byte, len(r.Wallets))
	copy(clone.Wallets, r.Wallets)
	clone.Permissions = make(map[Selector]FunctionPermission, len(r.Permissions))
	for sel, perm := range r.Permissions {
		clone.Permissions[sel] = perm.Clone()
	}
	return &clone
}

// WalletCount returns the number of wallets currently assigned.
func (r *Role) WalletCount() int { return len(r.Wallets) }

// HasWallet reports whether the wallet is assigned to the role.
func (r *Role) HasWallet(wallet [20]byte) bool {
	for _, w := range r.Wallets {
		if w == wallet {
			return true
		}
	}
	return false
}

func isZeroWord20(addr [20]byte) bool { return addr == [20]byte{} }
