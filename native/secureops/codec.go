package secureops

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"engineblox/storage"
)

var stateKey = []byte("secureops/state")

// cloneState returns a deep copy of the aggregate.
func cloneState(s *SecureOperationState) *SecureOperationState {
	if s == nil {
		return nil
	}
	clone := NewSecureOperationState()
	clone.Initialized = s.Initialized
	clone.TxCounter = s.TxCounter
	clone.TimeLockPeriodSec = s.TimeLockPeriodSec
	for id, record := range s.Ledger {
		clone.Ledger[id] = record.Clone()
	}
	for id := range s.Pending {
		clone.Pending[id] = struct{}{}
	}
	for hash, role := range s.Roles {
		clone.Roles[hash] = role.Clone()
	}
	clone.SupportedRoles = append([]RoleHash(nil), s.SupportedRoles...)
	for sel, schema := range s.Schemas {
		clone.Schemas[sel] = schema.Clone()
	}
	clone.SupportedFunctions = append([]Selector(nil), s.SupportedFunctions...)
	for t, name := range s.OperationTypes {
		clone.OperationTypes[t] = name
	}
	for sel, set := range s.Whitelist {
		targets := make(map[[20]byte]struct{}, len(set))
		for target := range set {
			targets[target] = struct{}{}
		}
		clone.Whitelist[sel] = targets
	}
	for signer, nonce := range s.Nonces {
		clone.Nonces[signer] = nonce
	}
	return clone
}

// --- Snapshot wire format ---
//
// Fixed-size byte arrays and map keys are hex encoded so the snapshot stays
// a plain JSON document that operators can inspect.

type storedPayment struct {
	Recipient    string `json:"recipient,omitempty"`
	NativeAmount string `json:"nativeAmount,omitempty"`
	Token        string `json:"token,omitempty"`
	TokenAmount  string `json:"tokenAmount,omitempty"`
}

type storedTxParams struct {
	Requester         string `json:"requester"`
	Target            string `json:"target"`
	Value             string `json:"value,omitempty"`
	GasLimit          uint64 `json:"gasLimit,omitempty"`
	OperationType     string `json:"operationType"`
	ExecutionSelector string `json:"executionSelector"`
	ExecutionParams   string `json:"executionParams,omitempty"`
}

type storedTxRecord struct {
	TxID        uint64         `json:"txId"`
	ReleaseTime int64          `json:"releaseTime"`
	Status      uint8          `json:"status"`
	Params      storedTxParams `json:"params"`
	Message     string         `json:"message"`
	Result      string         `json:"result,omitempty"`
	Payment     storedPayment  `json:"payment"`
}

type storedPermission struct {
	Selector            string   `json:"selector"`
	GrantedActions      uint16   `json:"grantedActions"`
	HandlerForSelectors []string `json:"handlerForSelectors"`
}

type storedRole struct {
	Name        string             `json:"name"`
	MaxWallets  uint32             `json:"maxWallets"`
	Protected   bool               `json:"protected"`
	Wallets     []string           `json:"wallets"`
	Permissions []storedPermission `json:"permissions"`
}

type storedSchema struct {
	Signature           string   `json:"signature"`
	Selector            string   `json:"selector"`
	OperationName       string   `json:"operationName"`
	SupportedActions    uint16   `json:"supportedActions"`
	Protected           bool     `json:"protected"`
	HandlerForSelectors []string `json:"handlerForSelectors"`
}

type storedState struct {
	Initialized       bool                `json:"initialized"`
	TxCounter         uint64              `json:"txCounter"`
	TimeLockPeriodSec uint64              `json:"timeLockPeriodSec"`
	Records           []storedTxRecord    `json:"records"`
	Pending           []uint64            `json:"pending"`
	Roles             []storedRole        `json:"roles"`
	Schemas           []storedSchema      `json:"schemas"`
	Whitelist         map[string][]string `json:"whitelist,omitempty"`
	Nonces            map[string]uint64   `json:"nonces,omitempty"`
}

func encodeHex20(v [20]byte) string    { return hex.EncodeToString(v[:]) }
func encodeHex32(v [32]byte) string    { return hex.EncodeToString(v[:]) }
func encodeSelector(v Selector) string { return hex.EncodeToString(v[:]) }

func decodeHex20(s string) ([20]byte, error) {
	var out [20]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 20 {
		return out, fmt.Errorf("secureops: invalid 20-byte hex %q", s)
	}
	copy(out[:], raw)
	return out, nil
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("secureops: invalid 32-byte hex %q", s)
	}
	copy(out[:], raw)
	return out, nil
}

func decodeSelector(s string) (Selector, error) {
	var out Selector
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 4 {
		return out, fmt.Errorf("secureops: invalid selector hex %q", s)
	}
	copy(out[:], raw)
	return out, nil
}

func encodeBig(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return ""
	}
	return v.String()
}

func decodeBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("secureops: invalid amount %q", s)
	}
	return v, nil
}

func encodeSelectors(sels []Selector) []string {
	out := make([]string, len(sels))
	for i, sel := range sels {
		out[i] = encodeSelector(sel)
	}
	return out
}

func decodeSelectors(raw []string) ([]Selector, error) {
	out := make([]Selector, len(raw))
	for i, s := range raw {
		sel, err := decodeSelector(s)
		if err != nil {
			return nil, err
		}
		out[i] = sel
	}
	return out, nil
}

func newStoredState(s *SecureOperationState) *storedState {
	stored := &storedState{
		Initialized:       s.Initialized,
		TxCounter:         s.TxCounter,
		TimeLockPeriodSec: s.TimeLockPeriodSec,
		Pending:           s.PendingTransactionIDs(),
		Whitelist:         make(map[string][]string),
		Nonces:            make(map[string]uint64),
	}
	for id := uint64(1); id <= s.TxCounter; id++ {
		record, ok := s.record(id)
		if !ok {
			continue
		}
		stored.Records = append(stored.Records, storedTxRecord{
			TxID:        record.TxID,
			ReleaseTime: record.ReleaseTime,
			Status:      uint8(record.Status),
			Params: storedTxParams{
				Requester:         encodeHex20(record.Params.Requester),
				Target:            encodeHex20(record.Params.Target),
				Value:             encodeBig(record.Params.Value),
				GasLimit:          record.Params.GasLimit,
				OperationType:     encodeHex32([32]byte(record.Params.OperationType)),
				ExecutionSelector: encodeSelector(record.Params.ExecutionSelector),
				ExecutionParams:   hex.EncodeToString(record.Params.ExecutionParams),
			},
			Message: encodeHex32(record.Message),
			Result:  hex.EncodeToString(record.Result),
			Payment: storedPayment{
				Recipient:    encodeHex20(record.Payment.Recipient),
				NativeAmount: encodeBig(record.Payment.NativeAmount),
				Token:        encodeHex20(record.Payment.Token),
				TokenAmount:  encodeBig(record.Payment.TokenAmount),
			},
		})
	}
	for _, hash := range s.SupportedRoles {
		role, ok := s.role(hash)
		if !ok {
			continue
		}
		entry := storedRole{
			Name:       role.Name,
			MaxWallets: role.MaxWallets,
			Protected:  role.Protected,
		}
		for _, wallet := range role.Wallets {
			entry.Wallets = append(entry.Wallets, encodeHex20(wallet))
		}
		for _, sel := range sortedPermissionSelectors(role) {
			perm := role.Permissions[sel]
			entry.Permissions = append(entry.Permissions, storedPermission{
				Selector:            encodeSelector(perm.Selector),
				GrantedActions:      perm.GrantedActions.Bits(),
				HandlerForSelectors: encodeSelectors(perm.HandlerForSelectors),
			})
		}
		stored.Roles = append(stored.Roles, entry)
	}
	for _, sel := range s.SupportedFunctions {
		schema, ok := s.schema(sel)
		if !ok {
			continue
		}
		stored.Schemas = append(stored.Schemas, storedSchema{
			Signature:           schema.Signature,
			Selector:            encodeSelector(schema.Selector),
			OperationName:       schema.OperationName,
			SupportedActions:    schema.SupportedActions.Bits(),
			Protected:           schema.Protected,
			HandlerForSelectors: encodeSelectors(schema.HandlerForSelectors),
		})
	}
	for sel := range s.Whitelist {
		for _, target := range s.WhitelistedTargets(sel) {
			stored.Whitelist[encodeSelector(sel)] = append(stored.Whitelist[encodeSelector(sel)], encodeHex20(target))
		}
	}
	for signer, nonce := range s.Nonces {
		stored.Nonces[encodeHex20(signer)] = nonce
	}
	return stored
}

func (stored *storedState) toState() (*SecureOperationState, error) {
	s := NewSecureOperationState()
	s.Initialized = stored.Initialized
	s.TxCounter = stored.TxCounter
	s.TimeLockPeriodSec = stored.TimeLockPeriodSec
	for _, rec := range stored.Records {
		requester, err := decodeHex20(rec.Params.Requester)
		if err != nil {
			return nil, err
		}
		target, err := decodeHex20(rec.Params.Target)
		if err != nil {
			return nil, err
		}
		value, err := decodeBig(rec.Params.Value)
		if err != nil {
			return nil, err
		}
		opType, err := decodeHex32(rec.Params.OperationType)
		if err != nil {
			return nil, err
		}
		execSel, err := decodeSelector(rec.Params.ExecutionSelector)
		if err != nil {
			return nil, err
		}
		execParams, err := hex.DecodeString(rec.Params.ExecutionParams)
		if err != nil {
			return nil, fmt.Errorf("secureops: invalid execution params: %w", err)
		}
		message, err := decodeHex32(rec.Message)
		if err != nil {
			return nil, err
		}
		result, err := hex.DecodeString(rec.Result)
		if err != nil {
			return nil, fmt.Errorf("secureops: invalid result payload: %w", err)
		}
		recipient, err := decodeHex20(rec.Payment.Recipient)
		if err != nil {
			return nil, err
		}
		token, err := decodeHex20(rec.Payment.Token)
		if err != nil {
			return nil, err
		}
		nativeAmount, err := decodeBig(rec.Payment.NativeAmount)
		if err != nil {
			return nil, err
		}
		tokenAmount, err := decodeBig(rec.Payment.TokenAmount)
		if err != nil {
			return nil, err
		}
		record := &TxRecord{
			TxID:        rec.TxID,
			ReleaseTime: rec.ReleaseTime,
			Status:      TxStatus(rec.Status),
			Params: TxParams{
				Requester:         requester,
				Target:            target,
				Value:             value,
				GasLimit:          rec.Params.GasLimit,
				OperationType:     OperationType(opType),
				ExecutionSelector: execSel,
				ExecutionParams:   execParams,
			},
			Message: message,
			Result:  result,
			Payment: PaymentDetails{
				Recipient:    recipient,
				NativeAmount: nativeAmount,
				Token:        token,
				TokenAmount:  tokenAmount,
			},
		}
		s.Ledger[record.TxID] = record
	}
	for _, id := range stored.Pending {
		s.Pending[id] = struct{}{}
	}
	for _, entry := range stored.Roles {
		actionsByRole := make(map[Selector]FunctionPermission, len(entry.Permissions))
		for _, perm := range entry.Permissions {
			sel, err := decodeSelector(perm.Selector)
			if err != nil {
				return nil, err
			}
			granted, err := ActionSetFromBits(perm.GrantedActions)
			if err != nil {
				return nil, err
			}
			handlers, err := decodeSelectors(perm.HandlerForSelectors)
			if err != nil {
				return nil, err
			}
			actionsByRole[sel] = FunctionPermission{Selector: sel, GrantedActions: granted, HandlerForSelectors: handlers}
		}
		role := &Role{
			Name:        entry.Name,
			Hash:        RoleHashFromName(entry.Name),
			MaxWallets:  entry.MaxWallets,
			Protected:   entry.Protected,
			Permissions: actionsByRole,
		}
		for _, w := range entry.Wallets {
			wallet, err := decodeHex20(w)
			if err != nil {
				return nil, err
			}
			role.Wallets = append(role.Wallets, wallet)
		}
		s.Roles[role.Hash] = role
		s.SupportedRoles = append(s.SupportedRoles, role.Hash)
	}
	for _, entry := range stored.Schemas {
		sel, err := decodeSelector(entry.Selector)
		if err != nil {
			return nil, err
		}
		actions, err := ActionSetFromBits(entry.SupportedActions)
		if err != nil {
			return nil, err
		}
		handlers, err := decodeSelectors(entry.HandlerForSelectors)
		if err != nil {
			return nil, err
		}
		schema := &FunctionSchema{
			Signature:           entry.Signature,
			Selector:            sel,
			OperationType:       OperationTypeFromName(entry.OperationName),
			OperationName:       entry.OperationName,
			SupportedActions:    actions,
			Protected:           entry.Protected,
			HandlerForSelectors: handlers,
		}
		s.Schemas[sel] = schema
		s.SupportedFunctions = append(s.SupportedFunctions, sel)
		s.OperationTypes[schema.OperationType] = schema.OperationName
	}
	for selHex, targets := range stored.Whitelist {
		sel, err := decodeSelector(selHex)
		if err != nil {
			return nil, err
		}
		set := make(map[[20]byte]struct{}, len(targets))
		for _, t := range targets {
			target, err := decodeHex20(t)
			if err != nil {
				return nil, err
			}
			set[target] = struct{}{}
		}
		s.Whitelist[sel] = set
	}
	for signerHex, nonce := range stored.Nonces {
		signer, err := decodeHex20(signerHex)
		if err != nil {
			return nil, err
		}
		s.Nonces[signer] = nonce
	}
	return s, nil
}

func sortedPermissionSelectors(role *Role) []Selector {
	out := make([]Selector, 0, len(role.Permissions))
	for sel := range role.Permissions {
		out = append(out, sel)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i][:]) < string(out[j][:]) })
	return out
}

// SaveState snapshots the aggregate into the database.
func SaveState(db storage.Database, s *SecureOperationState) error {
	if db == nil || s == nil {
		return fmt.Errorf("secureops: nil database or state")
	}
	raw, err := json.Marshal(newStoredState(s))
	if err != nil {
		return err
	}
	return db.Put(stateKey, raw)
}

// LoadState restores an aggregate previously written by SaveState. A missing
// snapshot returns a fresh empty aggregate; any other backend failure is
// surfaced so a daemon never re-initializes over unreadable state.
func LoadState(db storage.Database) (*SecureOperationState, error) {
	if db == nil {
		return nil, fmt.Errorf("secureops: nil database")
	}
	raw, err := db.Get(stateKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return NewSecureOperationState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("secureops: read snapshot: %w", err)
	}
	var stored storedState
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	return stored.toState()
}
