package secureops

import "errors"

// Validation errors surfaced for malformed caller input.
var (
	ErrZeroAddress      = errors.New("secureops: zero address")
	ErrEmptyName        = errors.New("secureops: empty name")
	ErrZeroMaxWallets   = errors.New("secureops: max wallets must be positive")
	ErrInvalidTimeLock  = errors.New("secureops: time lock period out of bounds")
	ErrLengthMismatch   = errors.New("secureops: array length mismatch")
	ErrIndexOutOfBounds = errors.New("secureops: index out of bounds")
	ErrInvalidRange     = errors.New("secureops: invalid range")
	ErrNilRecord        = errors.New("secureops: nil transaction record")
)

// Authorization errors. Fatal per call; the caller must retry with the
// correct credentials.
var (
	ErrNoPermission          = errors.New("secureops: caller lacks action permission")
	ErrSignerNotAuthorized   = errors.New("secureops: signer lacks action permission")
	ErrExecutorNotAuthorized = errors.New("secureops: executor lacks action permission")
)

// State-consistency errors.
var (
	ErrAlreadyInitialized = errors.New("secureops: already initialized")
	ErrNotInitialized     = errors.New("secureops: not initialized")
	ErrRoleExists         = errors.New("secureops: role already exists")
	ErrRoleNotFound       = errors.New("secureops: role not found")
	ErrRoleNotEmpty       = errors.New("secureops: role still has assigned wallets")
	ErrRoleProtected      = errors.New("secureops: protected role")
	ErrRoleAtCapacity     = errors.New("secureops: role wallet capacity reached")
	ErrWalletExists       = errors.New("secureops: wallet already in role")
	ErrWalletNotFound     = errors.New("secureops: wallet not found in role")
	ErrLastWallet         = errors.New("secureops: protected role requires at least one wallet")
	ErrSchemaExists       = errors.New("secureops: function schema already registered")
	ErrSchemaNotFound     = errors.New("secureops: function schema not found")
	ErrSchemaProtected    = errors.New("secureops: protected function schema")
	ErrSchemaInUse        = errors.New("secureops: function schema still referenced by roles")
	ErrPermissionExists   = errors.New("secureops: role already has a permission for selector")
	ErrPermissionNotFound = errors.New("secureops: role has no permission for selector")
	ErrTxNotFound         = errors.New("secureops: transaction not found")
	ErrTxStatusMismatch   = errors.New("secureops: transaction status does not allow transition")
	ErrBeforeReleaseTime  = errors.New("secureops: release time not reached")
	ErrReentrantCall      = errors.New("secureops: reentrant call rejected")
)

// Meta-transaction errors. The caller must regenerate a fresh signed payload
// and resubmit; stale payloads are never accepted.
var (
	ErrInvalidSignature   = errors.New("secureops: invalid meta-transaction signature")
	ErrMetaTxExpired      = errors.New("secureops: meta-transaction deadline expired")
	ErrGasPriceExceedsMax = errors.New("secureops: gas price exceeds signed maximum")
	ErrChainIDMismatch    = errors.New("secureops: chain id mismatch")
	ErrInvalidNonce       = errors.New("secureops: invalid meta-transaction nonce")
	ErrHandlerMismatch    = errors.New("secureops: handler contract or selector mismatch")
)

// Whitelist errors. A whitelist denial leaves the record PENDING so the
// transaction can be retried after whitelisting, or cancelled.
var (
	ErrTargetNotWhitelisted     = errors.New("secureops: target not whitelisted for selector")
	ErrTargetAlreadyWhitelisted = errors.New("secureops: target already whitelisted for selector")
	ErrTargetNotFound           = errors.New("secureops: target not in whitelist")
)

// Definition integrity errors, raised at registration time so a malformed
// definition can never become a usable permission surface.
var (
	ErrSelectorMismatch         = errors.New("secureops: selector does not match signature derivation")
	ErrEmptyHandlerList         = errors.New("secureops: handler selector list must not be empty")
	ErrHandlerRelationMismatch  = errors.New("secureops: permission handler selectors do not match schema")
	ErrActionsEmpty             = errors.New("secureops: action bitmap must not be empty")
	ErrActionNotSupported       = errors.New("secureops: action not supported by function schema")
	ErrUnprotectedDispatchable  = errors.New("secureops: dispatchable selector must be registered as protected")
	ErrOperationTypeConflict    = errors.New("secureops: operation type already registered under a different name")
	ErrOperationTypeMismatch    = errors.New("secureops: operation type does not match function schema")
	ErrHandlerCannotDriveTarget = errors.New("secureops: handler selector not permitted to drive execution selector")
	ErrNoCallRunner             = errors.New("secureops: call runner not configured")
)
