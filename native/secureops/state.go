package secureops

import (
	"sort"
)

// SecureOperationState is the aggregate root for one protected contract
// instance: the transaction ledger, the role and schema catalogues, the
// per-selector target whitelists and the per-signer nonces. It is created
// once, initialized exactly once and mutated only through engine operations.
type SecureOperationState struct {
	Initialized        bool
	TxCounter          uint64
	TimeLockPeriodSec  uint64
	Ledger             map[uint64]*TxRecord
	Pending            map[uint64]struct{}
	Roles              map[RoleHash]*Role
	SupportedRoles     []RoleHash
	Schemas            map[Selector]*FunctionSchema
	SupportedFunctions []Selector
	OperationTypes     map[OperationType]string
	Whitelist          map[Selector]map[[20]byte]struct{}
	Nonces             map[[20]byte]uint64
}

// NewSecureOperationState returns an empty, uninitialized aggregate.
func NewSecureOperationState() *SecureOperationState {
	return &SecureOperationState{
		Ledger:         make(map[uint64]*TxRecord),
		Pending:        make(map[uint64]struct{}),
		Roles:          make(map[RoleHash]*Role),
		Schemas:        make(map[Selector]*FunctionSchema),
		OperationTypes: make(map[OperationType]string),
		Whitelist:      make(map[Selector]map[[20]byte]struct{}),
		Nonces:         make(map[[20]byte]uint64),
	}
}

// nextTxID allocates the next monotonic transaction id, starting at 1.
func (s *SecureOperationState) nextTxID() uint64 {
	s.TxCounter++
	return s.TxCounter
}

func (s *SecureOperationState) role(hash RoleHash) (*Role, bool) {
	role, ok := s.Roles[hash]
	return role, ok
}

func (s *SecureOperationState) schema(sel Selector) (*FunctionSchema, bool) {
	schema, ok := s.Schemas[sel]
	return schema, ok
}

func (s *SecureOperationState) record(txID uint64) (*TxRecord, bool) {
	record, ok := s.Ledger[txID]
	return record, ok
}

// markPending stores a freshly requested record and mirrors it into the
// pending set.
func (s *SecureOperationState) markPending(record *TxRecord) {
	s.Ledger[record.TxID] = record
	s.Pending[record.TxID] = struct{}{}
}

// markTerminal transitions a record to a terminal status and removes it from
// the pending set. Status and pending membership always move together.
func (s *SecureOperationState) markTerminal(record *TxRecord, status TxStatus) {
	record.Status = status
	delete(s.Pending, record.TxID)
}

// --- Read-only queries ---

// GetTransaction returns a copy of the record for txID.
func (s *SecureOperationState) GetTransaction(txID uint64) (*TxRecord, error) {
	record, ok := s.record(txID)
	if !ok {
		return nil, ErrTxNotFound
	}
	return record.Clone(), nil
}

// TransactionHistory returns copies of the records with ids in [start, end].
// Ids without a record are skipped; start must not exceed end.
func (s *SecureOperationState) TransactionHistory(start, end uint64) ([]*TxRecord, error) {
	if start == 0 || start > end {
		return nil, ErrInvalidRange
	}
	if end > s.TxCounter {
		end = s.TxCounter
	}
	out := make([]*TxRecord, 0, end-start+1)
	for id := start; id <= end; id++ {
		if record, ok := s.record(id); ok {
			out = append(out, record.Clone())
		}
	}
	return out, nil
}

// PendingTransactionIDs returns the ids of all pending records in ascending
// order.
func (s *SecureOperationState) PendingTransactionIDs() []uint64 {
	out := make([]uint64, 0, len(s.Pending))
	for id := range s.Pending {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetRole returns a copy of the role identified by hash.
func (s *SecureOperationState) GetRole(hash RoleHash) (*Role, error) {
	role, ok := s.role(hash)
	if !ok {
		return nil, ErrRoleNotFound
	}
	return role.Clone(), nil
}

// GetFunctionSchema returns a copy of the schema registered for selector.
func (s *SecureOperationState) GetFunctionSchema(sel Selector) (*FunctionSchema, error) {
	schema, ok := s.schema(sel)
	if !ok {
		return nil, ErrSchemaNotFound
	}
	return schema.Clone(), nil
}

// SupportedRoleHashes returns the registered role hashes in registration
// order.
func (s *SecureOperationState) SupportedRoleHashes() []RoleHash {
	return append([]RoleHash(nil), s.SupportedRoles...)
}

// SupportedFunctionSelectors returns the registered selectors in
// registration order.
func (s *SecureOperationState) SupportedFunctionSelectors() []Selector {
	return append([]Selector(nil), s.SupportedFunctions...)
}

// SupportedOperationTypes returns the registered operation types and their
// names.
func (s *SecureOperationState) SupportedOperationTypes() map[OperationType]string {
	out := make(map[OperationType]string, len(s.OperationTypes))
	for t, name := range s.OperationTypes {
		out[t] = name
	}
	return out
}

// RolesForWallet returns the hashes of every role containing the wallet.
func (s *SecureOperationState) RolesForWallet(wallet [20]byte) []RoleHash {
	out := make([]RoleHash, 0, 2)
	for _, hash := range s.SupportedRoles {
		if role, ok := s.role(hash); ok && role.HasWallet(wallet) {
			out = append(out, hash)
		}
	}
	return out
}

// SignerNonce returns the current nonce for a signer. Unknown signers start
// at zero.
func (s *SecureOperationState) SignerNonce(signer [20]byte) uint64 {
	return s.Nonces[signer]
}

// TimeLockPeriod returns the configured time-lock period in seconds.
func (s *SecureOperationState) TimeLockPeriod() uint64 {
	return s.TimeLockPeriodSec
}

// IsInitialized reports whether Initialize has completed for this aggregate.
func (s *SecureOperationState) IsInitialized() bool {
	return s.Initialized
}

// WhitelistedTargets returns the allow-listed targets for an execution
// selector. An absent or empty set means deny-all.
func (s *SecureOperationState) WhitelistedTargets(sel Selector) [][20]byte {
	set := s.Whitelist[sel]
	out := make([][20]byte, 0, len(set))
	for target := range set {
		out = append(out, target)
	}
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < 20; k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}
