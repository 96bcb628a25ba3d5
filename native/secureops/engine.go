package secureops

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"engineblox/core/events"
)

// Bounds for the time-lock period accepted at initialization and on later
// period updates.
const (
	MinTimeLockPeriodSec uint64 = 60
	MaxTimeLockPeriodSec uint64 = 90 * 24 * 60 * 60
)

// Engine drives the multi-phase secure-operation state machine over one
// SecureOperationState aggregate: request, time-delayed approval,
// cancellation and the meta-transaction paths. All mutations of the
// aggregate go through the engine. The mutex is released while a delegated
// call runs, so read queries never block; every mutating entry point checks
// the dispatch flag and rejects reentrant calls with ErrReentrantCall.
type Engine struct {
	mu          sync.Mutex
	dispatching atomic.Bool

	state             *SecureOperationState
	emitter           events.Emitter
	nowFn             func() time.Time
	chainID           uint64
	verifyingContract [20]byte
	gasPriceFn        func() *big.Int
	registry          *DispatchRegistry
	runner            CallRunner
}

// NewEngine constructs an engine over a fresh aggregate with no-op
// dependencies. Callers wire the emitter, chain id, verifying contract and
// call runner before Initialize.
func NewEngine() *Engine {
	registry := NewDispatchRegistry()
	return &Engine{
		state:    NewSecureOperationState(),
		emitter:  events.NoopEmitter{},
		nowFn:    func() time.Time { return time.Now().UTC() },
		registry: registry,
		runner:   registry.Runner(),
	}
}

// SetState replaces the aggregate, typically with one restored from a
// snapshot. Passing nil installs a fresh empty aggregate.
func (e *Engine) SetState(state *SecureOperationState) {
	if state == nil {
		state = NewSecureOperationState()
	}
	e.state = state
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Nil restores the default UTC clock.
// Primarily intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// SetChainID configures the chain id bound into meta-transaction digests.
func (e *Engine) SetChainID(chainID uint64) { e.chainID = chainID }

// SetVerifyingContract configures the contract address bound into the
// meta-transaction signing domain.
func (e *Engine) SetVerifyingContract(addr [20]byte) { e.verifyingContract = addr }

// SetGasPriceFunc configures the source for the current gas price consulted
// when a signed payload carries a max gas price. Nil disables the check.
func (e *Engine) SetGasPriceFunc(fn func() *big.Int) { e.gasPriceFn = fn }

// SetCallRunner overrides how delegated calls are dispatched. Nil restores
// the dispatch-registry runner.
func (e *Engine) SetCallRunner(runner CallRunner) {
	if runner == nil {
		e.runner = e.registry.Runner()
		return
	}
	e.runner = runner
}

// Dispatch exposes the selector registry entry points and executors bind to.
func (e *Engine) Dispatch() *DispatchRegistry { return e.registry }

func (e *Engine) now() time.Time { return e.nowFn() }

// lockMutating serialises a mutating entry point. While a delegated call is
// in flight the mutex is free but the dispatch flag is set, so callers fail
// fast instead of mutating mid-dispatch. The flag is rechecked after the
// mutex is held to close the window between the two.
func (e *Engine) lockMutating() error {
	if e.dispatching.Load() {
		return ErrReentrantCall
	}
	e.mu.Lock()
	if e.dispatching.Load() {
		e.mu.Unlock()
		return ErrReentrantCall
	}
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Initialize populates the three protected system roles with their initial
// wallets, sets the time-lock period and wires the event forwarder. It may
// complete exactly once per aggregate.
func (e *Engine) Initialize(owner, broadcaster, recovery [20]byte, timeLockPeriodSec uint64, forwarder events.Emitter) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	if e.state.Initialized {
		return ErrAlreadyInitialized
	}
	if isZeroWord20(owner) || isZeroWord20(broadcaster) || isZeroWord20(recovery) {
		return ErrZeroAddress
	}
	if timeLockPeriodSec < MinTimeLockPeriodSec || timeLockPeriodSec > MaxTimeLockPeriodSec {
		return ErrInvalidTimeLock
	}
	if forwarder != nil {
		e.emitter = forwarder
	}
	system := []struct {
		name   string
		wallet [20]byte
	}{
		{OwnerRoleName, owner},
		{BroadcasterRoleName, broadcaster},
		{RecoveryRoleName, recovery},
	}
	for _, entry := range system {
		hash, err := e.createRoleLocked(entry.name, 1, true)
		if err != nil {
			return err
		}
		if err := e.assignWalletLocked(hash, entry.wallet); err != nil {
			return err
		}
	}
	e.state.TimeLockPeriodSec = timeLockPeriodSec
	e.state.Initialized = true
	return nil
}

// UpdateTimeLockPeriod replaces the time-lock period. Applied by operator
// tooling once a timelock-update operation has completed through the state
// machine; like every mutation it is rejected while a dispatch is running.
func (e *Engine) UpdateTimeLockPeriod(periodSec uint64) error {
	if err := e.lockMutating(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	if !e.state.Initialized {
		return ErrNotInitialized
	}
	if periodSec < MinTimeLockPeriodSec || periodSec > MaxTimeLockPeriodSec {
		return ErrInvalidTimeLock
	}
	e.state.TimeLockPeriodSec = periodSec
	return nil
}

// RequestTransaction opens a new time-delayed transaction. The requester
// must hold the time-delay request action on the handler selector, and the
// execution selector's schema must permit being driven by that handler.
func (e *Engine) RequestTransaction(requester, target [20]byte, value *big.Int, gasLimit uint64, operationType OperationType, handlerSelector, executionSelector Selector, executionParams []byte) (*TxRecord, error) {
	if err := e.lockMutating(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	if !e.state.Initialized {
		return nil, ErrNotInitialized
	}
	if isZeroWord20(requester) {
		return nil, ErrZeroAddress
	}
	if !e.hasActionPermissionLocked(requester, handlerSelector, ActionExecuteTimeDelayRequest) {
		return nil, ErrNoPermission
	}
	schema, ok := e.state.schema(executionSelector)
	if !ok {
		return nil, ErrSchemaNotFound
	}
	if !schema.HandlesSelector(handlerSelector) {
		return nil, ErrHandlerCannotDriveTarget
	}
	if operationType != schema.OperationType {
		return nil, ErrOperationTypeMismatch
	}
	now := e.now()
	record := &TxRecord{
		TxID:        e.state.nextTxID(),
		ReleaseTime: now.Unix() + int64(e.state.TimeLockPeriodSec),
		Status:      TxStatusPending,
		Params: TxParams{
			Requester:         requester,
			Target:            target,
			Value:             cloneBigInt(value),
			GasLimit:          gasLimit,
			OperationType:     operationType,
			ExecutionSelector: executionSelector,
			ExecutionParams:   append([]byte(nil), executionParams...),
		},
	}
	record.Message = e.txRecordDigest(record)
	e.state.markPending(record)
	e.emit(TxRequested{
		TxID:          record.TxID,
		Requester:     requester,
		OperationType: operationType,
		ReleaseTime:   record.ReleaseTime,
	})
	return record.Clone(), nil
}

// ApproveTransactionAfterDelay completes a pending transaction once its
// release time has elapsed, dispatching the delegated call through the
// whitelist guard. A whitelist denial or dispatch failure leaves the record
// pending so it can be retried or cancelled.
func (e *Engine) ApproveTransactionAfterDelay(approver [20]byte, txID uint64, handlerSelector Selector) (*TxRecord, error) {
	if err := e.lockMutating(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	if !e.state.Initialized {
		return nil, ErrNotInitialized
	}
	record, ok := e.state.record(txID)
	if !ok {
		return nil, ErrTxNotFound
	}
	if record.Status != TxStatusPending {
		return nil, ErrTxStatusMismatch
	}
	if e.now().Unix() < record.ReleaseTime {
		return nil, ErrBeforeReleaseTime
	}
	schema, ok := e.state.schema(record.Params.ExecutionSelector)
	if !ok {
		return nil, ErrSchemaNotFound
	}
	if !schema.HandlesSelector(handlerSelector) {
		return nil, ErrHandlerCannotDriveTarget
	}
	if !e.hasActionPermissionLocked(approver, record.Params.ExecutionSelector, ActionExecuteTimeDelayApprove) {
		return nil, ErrNoPermission
	}
	result, err := e.executeRecordLocked(record)
	if err != nil {
		return nil, err
	}
	record.Result = result
	e.state.markTerminal(record, TxStatusCompleted)
	e.emit(TxApproved{TxID: record.TxID, Approver: approver, OperationType: record.Params.OperationType})
	return record.Clone(), nil
}

// CancelTransaction cancels a pending transaction. No execution occurs.
func (e *Engine) CancelTransaction(canceller [20]byte, txID uint64, handlerSelector Selector) (*TxRecord, error) {
	if err := e.lockMutating(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	if !e.state.Initialized {
		return nil, ErrNotInitialized
	}
	record, ok := e.state.record(txID)
	if !ok {
		return nil, ErrTxNotFound
	}
	if record.Status != TxStatusPending {
		return nil, ErrTxStatusMismatch
	}
	schema, ok := e.state.schema(record.Params.ExecutionSelector)
	if !ok {
		return nil, ErrSchemaNotFound
	}
	if !schema.HandlesSelector(handlerSelector) {
		return nil, ErrHandlerCannotDriveTarget
	}
	if !e.hasActionPermissionLocked(canceller, record.Params.ExecutionSelector, ActionExecuteTimeDelayCancel) {
		return nil, ErrNoPermission
	}
	e.state.markTerminal(record, TxStatusCancelled)
	e.emit(TxCancelled{TxID: record.TxID, Canceller: canceller, OperationType: record.Params.OperationType})
	return record.Clone(), nil
}

// ApproveTransactionWithMetaTx completes a pending transaction on the
// strength of a verified meta-transaction. The signature replaces both the
// caller's time-delay permission and the release-time gate.
func (e *Engine) ApproveTransactionWithMetaTx(executor [20]byte, metaTx *MetaTransaction) (*TxRecord, error) {
	if err := e.lockMutating(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	if !e.state.Initialized {
		return nil, ErrNotInitialized
	}
	if metaTx == nil {
		return nil, ErrNilRecord
	}
	record, ok := e.state.record(metaTx.TxRecord.TxID)
	if !ok {
		return nil, ErrTxNotFound
	}
	if record.Status != TxStatusPending {
		return nil, ErrTxStatusMismatch
	}
	if err := e.verifyMetaTxLocked(record, metaTx, executor, ActionSignMetaApprove, ActionExecuteMetaApprove); err != nil {
		e.emit(MetaTxRejected{TxID: record.TxID, Executor: executor, Reason: rejectReason(err)})
		return nil, err
	}
	result, err := e.executeRecordLocked(record)
	if err != nil {
		return nil, err
	}
	record.Result = result
	e.state.markTerminal(record, TxStatusCompleted)
	e.emit(TxMetaApproved{
		TxID:          record.TxID,
		Signer:        metaTx.Params.Signer,
		Executor:      executor,
		OperationType: record.Params.OperationType,
	})
	return record.Clone(), nil
}

// CancelTransactionWithMetaTx cancels a pending transaction on the strength
// of a verified meta-transaction.
func (e *Engine) CancelTransactionWithMetaTx(executor [20]byte, metaTx *MetaTransaction) (*TxRecord, error) {
	if err := e.lockMutating(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	if !e.state.Initialized {
		return nil, ErrNotInitialized
	}
	if metaTx == nil {
		return nil, ErrNilRecord
	}
	record, ok := e.state.record(metaTx.TxRecord.TxID)
	if !ok {
		return nil, ErrTxNotFound
	}
	if record.Status != TxStatusPending {
		return nil, ErrTxStatusMismatch
	}
	if err := e.verifyMetaTxLocked(record, metaTx, executor, ActionSignMetaCancel, ActionExecuteMetaCancel); err != nil {
		e.emit(MetaTxRejected{TxID: record.TxID, Executor: executor, Reason: rejectReason(err)})
		return nil, err
	}
	e.state.markTerminal(record, TxStatusCancelled)
	e.emit(TxMetaCancelled{
		TxID:          record.TxID,
		Signer:        metaTx.Params.Signer,
		Executor:      executor,
		OperationType: record.Params.OperationType,
	})
	return record.Clone(), nil
}

// RequestAndApproveTransaction creates a new record and completes it within
// one verified meta-transaction. Used for operations that need no
// deliberation window. The signed payload embeds the new record with TxID 0;
// the engine allocates the id on acceptance.
func (e *Engine) RequestAndApproveTransaction(executor [20]byte, metaTx *MetaTransaction) (*TxRecord, error) {
	if err := e.lockMutating(); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	if !e.state.Initialized {
		return nil, ErrNotInitialized
	}
	if metaTx == nil {
		return nil, ErrNilRecord
	}
	embedded := metaTx.TxRecord
	if embedded.TxID != 0 {
		return nil, ErrTxStatusMismatch
	}
	schema, ok := e.state.schema(embedded.Params.ExecutionSelector)
	if !ok {
		return nil, ErrSchemaNotFound
	}
	if !schema.HandlesSelector(metaTx.Params.HandlerSelector) {
		return nil, ErrHandlerCannotDriveTarget
	}
	if embedded.Params.OperationType != schema.OperationType {
		return nil, ErrOperationTypeMismatch
	}
	if err := e.verifyMetaTxLocked(&embedded, metaTx, executor, ActionSignMetaRequestAndApprove, ActionExecuteMetaRequestAndApprove); err != nil {
		e.emit(MetaTxRejected{TxID: embedded.TxID, Executor: executor, Reason: rejectReason(err)})
		return nil, err
	}
	record := embedded.Clone()
	record.TxID = e.state.nextTxID()
	record.ReleaseTime = 0
	record.Status = TxStatusPending
	record.Message = metaTx.Message
	e.state.markPending(record)
	result, err := e.executeRecordLocked(record)
	if err != nil {
		// The record stays pending: whitelist or dispatch failures are
		// retry-friendly, and the request half of the operation stands.
		e.emit(TxRequestAndApproved{
			TxID:          record.TxID,
			Signer:        metaTx.Params.Signer,
			Executor:      executor,
			OperationType: record.Params.OperationType,
			Success:       false,
		})
		return nil, err
	}
	record.Result = result
	e.state.markTerminal(record, TxStatusCompleted)
	e.emit(TxRequestAndApproved{
		TxID:          record.TxID,
		Signer:        metaTx.Params.Signer,
		Executor:      executor,
		OperationType: record.Params.OperationType,
		Success:       true,
	})
	return record.Clone(), nil
}

// executeRecordLocked runs the whitelist guard and dispatches the delegated
// call. The record is not mutated: callers commit the terminal transition
// only after a successful dispatch, so denied or failed calls leave the
// record pending. The mutex is released while the call runs and reacquired
// before returning: read queries stay non-blocking during dispatch, and the
// dispatch flag rejects any mutation attempted from inside the call.
func (e *Engine) executeRecordLocked(record *TxRecord) ([]byte, error) {
	if !e.isTargetWhitelistedLocked(record.Params.ExecutionSelector, record.Params.Target) {
		e.emit(WhitelistDenied{
			TxID:     record.TxID,
			Selector: record.Params.ExecutionSelector,
			Target:   record.Params.Target,
		})
		return nil, ErrTargetNotWhitelisted
	}
	if e.runner == nil {
		return nil, ErrNoCallRunner
	}
	target := record.Params.Target
	selector := record.Params.ExecutionSelector
	value := cloneBigInt(record.Params.Value)
	gasLimit := record.Params.GasLimit
	params := append([]byte(nil), record.Params.ExecutionParams...)
	e.dispatching.Store(true)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.dispatching.Store(false)
	}()
	return e.runner.Call(target, selector, value, gasLimit, params)
}

// --- Read-only queries (safe at any time, never block on dispatch) ---

// GetTransaction returns a copy of the ledger record for txID.
func (e *Engine) GetTransaction(txID uint64) (*TxRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.GetTransaction(txID)
}

// TransactionHistory returns copies of records with ids in [start, end].
func (e *Engine) TransactionHistory(start, end uint64) ([]*TxRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.TransactionHistory(start, end)
}

// PendingTransactionIDs returns the ids of pending records in ascending
// order.
func (e *Engine) PendingTransactionIDs() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.PendingTransactionIDs()
}

// GetRole returns a copy of the role identified by hash.
func (e *Engine) GetRole(hash RoleHash) (*Role, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.GetRole(hash)
}

// GetFunctionSchema returns a copy of the schema registered for selector.
func (e *Engine) GetFunctionSchema(sel Selector) (*FunctionSchema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.GetFunctionSchema(sel)
}

// SupportedRoleHashes returns registered role hashes in registration order.
func (e *Engine) SupportedRoleHashes() []RoleHash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.SupportedRoleHashes()
}

// SupportedFunctionSelectors returns registered selectors in registration
// order.
func (e *Engine) SupportedFunctionSelectors() []Selector {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.SupportedFunctionSelectors()
}

// SupportedOperationTypes returns the registered operation types and names.
func (e *Engine) SupportedOperationTypes() map[OperationType]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.SupportedOperationTypes()
}

// RolesForWallet returns the hashes of every role containing the wallet.
func (e *Engine) RolesForWallet(wallet [20]byte) []RoleHash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.RolesForWallet(wallet)
}

// SignerNonce returns the current meta-transaction nonce for a signer.
func (e *Engine) SignerNonce(signer [20]byte) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.SignerNonce(signer)
}

// TimeLockPeriod returns the configured time-lock period in seconds.
func (e *Engine) TimeLockPeriod() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.TimeLockPeriod()
}

// IsInitialized reports whether Initialize has completed.
func (e *Engine) IsInitialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.IsInitialized()
}

// Snapshot returns a deep copy of the aggregate for persistence.
func (e *Engine) Snapshot() *SecureOperationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneState(e.state)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
