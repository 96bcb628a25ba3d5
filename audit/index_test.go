package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"engineblox/native/secureops"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "audit.db"), nil)
	require.NoError(t, err)
	return idx
}

func TestIndexRecordsTerminalEvents(t *testing.T) {
	idx := openTestIndex(t)
	opType := secureops.OperationTypeFromName("OWNERSHIP_TRANSFER")

	idx.Emit(secureops.TxApproved{TxID: 7, Approver: [20]byte{19: 1}, OperationType: opType})
	idx.Emit(secureops.TxMetaCancelled{TxID: 7, Signer: [20]byte{19: 2}, Executor: [20]byte{19: 3}, OperationType: opType})

	entries, err := idx.EntriesForTx(7)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, secureops.EventTypeTxApproved, entries[0].EventType)
	require.Equal(t, secureops.EventTypeTxMetaCancelled, entries[1].EventType)
	require.Equal(t, opType.String(), entries[0].OperationType)
	require.NotEmpty(t, entries[0].Actor)
	// Meta events attribute the signer as the actor.
	require.Equal(t, entries[1].Actor, secureops.TxMetaCancelled{Signer: [20]byte{19: 2}}.Attributes()["signer"])
}

func TestIndexIgnoresNonTerminalEvents(t *testing.T) {
	idx := openTestIndex(t)

	idx.Emit(secureops.TxRequested{TxID: 5, Requester: [20]byte{19: 1}})

	entries, err := idx.EntriesForTx(5)
	require.NoError(t, err)
	require.Empty(t, entries)
}
