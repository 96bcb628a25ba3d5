package secureops

import (
	"encoding/hex"
	"strconv"
)

const (
	// EventTypeTxRequested is emitted when a time-delayed request is accepted.
	EventTypeTxRequested = "secureops.tx_requested"
	// EventTypeTxApproved is emitted when a pending transaction completes via
	// the time-delay path.
	EventTypeTxApproved = "secureops.tx_approved"
	// EventTypeTxCancelled is emitted when a pending transaction is cancelled.
	EventTypeTxCancelled = "secureops.tx_cancelled"
	// EventTypeTxMetaApproved is emitted when a pending transaction completes
	// via a verified meta-transaction.
	EventTypeTxMetaApproved = "secureops.tx_meta_approved"
	// EventTypeTxMetaCancelled is emitted when a pending transaction is
	// cancelled via a verified meta-transaction.
	EventTypeTxMetaCancelled = "secureops.tx_meta_cancelled"
	// EventTypeTxRequestAndApproved is emitted for the single-step
	// request-and-approve meta path.
	EventTypeTxRequestAndApproved = "secureops.tx_request_and_approved"
	// EventTypeMetaTxRejected is emitted when a signed payload fails
	// verification on any of the meta paths.
	EventTypeMetaTxRejected = "secureops.metatx_rejected"
	// EventTypeWhitelistDenied is emitted when a dispatch is denied by the
	// target whitelist.
	EventTypeWhitelistDenied = "secureops.whitelist_denied"
)

// TxRequested reports a newly accepted time-delayed request.
type TxRequested struct {
	TxID          uint64
	Requester     [20]byte
	OperationType OperationType
	ReleaseTime   int64
}

func (TxRequested) EventType() string { return EventTypeTxRequested }

func (e TxRequested) Attributes() map[string]string {
	return map[string]string{
		"txId":          strconv.FormatUint(e.TxID, 10),
		"requester":     withHexPrefix(e.Requester[:]),
		"operationType": e.OperationType.String(),
		"releaseTime":   strconv.FormatInt(e.ReleaseTime, 10),
	}
}

// TxApproved reports a completed transaction on the time-delay path.
type TxApproved struct {
	TxID          uint64
	Approver      [20]byte
	OperationType OperationType
}

func (TxApproved) EventType() string { return EventTypeTxApproved }

func (e TxApproved) Attributes() map[string]string {
	return map[string]string{
		"txId":          strconv.FormatUint(e.TxID, 10),
		"approver":      withHexPrefix(e.Approver[:]),
		"operationType": e.OperationType.String(),
	}
}

// TxCancelled reports a cancelled transaction.
type TxCancelled struct {
	TxID          uint64
	Canceller     [20]byte
	OperationType OperationType
}

func (TxCancelled) EventType() string { return EventTypeTxCancelled }

func (e TxCancelled) Attributes() map[string]string {
	return map[string]string{
		"txId":          strconv.FormatUint(e.TxID, 10),
		"canceller":     withHexPrefix(e.Canceller[:]),
		"operationType": e.OperationType.String(),
	}
}

// TxMetaApproved reports a completion driven by a verified meta-transaction.
type TxMetaApproved struct {
	TxID          uint64
	Signer        [20]byte
	Executor      [20]byte
	OperationType OperationType
}

func (TxMetaApproved) EventType() string { return EventTypeTxMetaApproved }

func (e TxMetaApproved) Attributes() map[string]string {
	return map[string]string{
		"txId":          strconv.FormatUint(e.TxID, 10),
		"signer":        withHexPrefix(e.Signer[:]),
		"executor":      withHexPrefix(e.Executor[:]),
		"operationType": e.OperationType.String(),
	}
}

// TxMetaCancelled reports a cancellation driven by a verified
// meta-transaction.
type TxMetaCancelled struct {
	TxID          uint64
	Signer        [20]byte
	Executor      [20]byte
	OperationType OperationType
}

func (TxMetaCancelled) EventType() string { return EventTypeTxMetaCancelled }

func (e TxMetaCancelled) Attributes() map[string]string {
	return map[string]string{
		"txId":          strconv.FormatUint(e.TxID, 10),
		"signer":        withHexPrefix(e.Signer[:]),
		"executor":      withHexPrefix(e.Executor[:]),
		"operationType": e.OperationType.String(),
	}
}

// TxRequestAndApproved reports the single-step request-and-approve path.
type TxRequestAndApproved struct {
	TxID          uint64
	Signer        [20]byte
	Executor      [20]byte
	OperationType OperationType
	Success       bool
}

func (TxRequestAndApproved) EventType() string { return EventTypeTxRequestAndApproved }

func (e TxRequestAndApproved) Attributes() map[string]string {
	return map[string]string{
		"txId":          strconv.FormatUint(e.TxID, 10),
		"signer":        withHexPrefix(e.Signer[:]),
		"executor":      withHexPrefix(e.Executor[:]),
		"operationType": e.OperationType.String(),
		"success":       strconv.FormatBool(e.Success),
	}
}

// MetaTxRejected reports a signed payload that failed verification. TxID is
// zero for request-and-approve payloads rejected before id allocation.
type MetaTxRejected struct {
	TxID     uint64
	Executor [20]byte
	Reason   string
}

func (MetaTxRejected) EventType() string { return EventTypeMetaTxRejected }

func (e MetaTxRejected) Attributes() map[string]string {
	return map[string]string{
		"txId":     strconv.FormatUint(e.TxID, 10),
		"executor": withHexPrefix(e.Executor[:]),
		"reason":   e.Reason,
	}
}

// WhitelistDenied reports a dispatch blocked fail-closed by the target
// whitelist. The record stays pending.
type WhitelistDenied struct {
	TxID     uint64
	Selector Selector
	Target   [20]byte
}

func (WhitelistDenied) EventType() string { return EventTypeWhitelistDenied }

func (e WhitelistDenied) Attributes() map[string]string {
	return map[string]string{
		"txId":     strconv.FormatUint(e.TxID, 10),
		"selector": e.Selector.String(),
		"target":   withHexPrefix(e.Target[:]),
	}
}

func withHexPrefix(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(raw)
}
