package metrics

import (
	"engineblox/core/events"
	"engineblox/native/secureops"
)

// EventEmitter translates engine events into metric observations. Wire it
// alongside the forwarder via events.MultiEmitter.
type EventEmitter struct {
	metrics *SecureOpsMetrics
}

// NewEventEmitter returns an emitter feeding the process-wide engine
// metrics.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{metrics: SecureOps()}
}

// Emit implements events.Emitter. The pending gauge tracks event deltas:
// requests raise it, terminal transitions lower it, and a failed
// request-and-approve raises it because the record joins the pending set.
func (e *EventEmitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	switch ev := evt.(type) {
	case secureops.TxRequested:
		e.metrics.ObserveRequest()
		e.metrics.PendingAdded()
	case secureops.TxApproved:
		e.metrics.ObserveApproval("delay")
		e.metrics.PendingSettled()
	case secureops.TxMetaApproved:
		e.metrics.ObserveApproval("meta")
		e.metrics.PendingSettled()
	case secureops.TxCancelled:
		e.metrics.ObserveCancellation("delay")
		e.metrics.PendingSettled()
	case secureops.TxMetaCancelled:
		e.metrics.ObserveCancellation("meta")
		e.metrics.PendingSettled()
	case secureops.TxRequestAndApproved:
		if ev.Success {
			e.metrics.ObserveApproval("request_and_approve")
		} else {
			e.metrics.PendingAdded()
		}
	case secureops.MetaTxRejected:
		e.metrics.ObserveMetaTxRejected(ev.Reason)
	case secureops.WhitelistDenied:
		e.metrics.ObserveWhitelistDenied()
	}
}
