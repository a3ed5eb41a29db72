package reconcile

import (
	"testing"

	"cloudsync/core/tree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStates = []tree.SyncState{
	tree.StateUnknown,
	tree.StateSynced,
	tree.StateUploading,
	tree.StateDownloading,
	tree.StateDeleting,
	tree.StateComparing,
	tree.StateResolving,
	tree.StateCancelling,
}

func TestTransition_TableIsTotal(t *testing.T) {
	for _, state := range allStates {
		for _, event := range events() {
			next, err := transition(state, event)
			want, defined := transitions[state][event]
			if defined {
				require.NoError(t, err, "%s on %s", event, state)
				assert.Equal(t, want, next)
				continue
			}
			require.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", event, state)
			assert.Equal(t, state, next)
		}
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name  string
		state tree.SyncState
		event Event
		want  tree.SyncState
		err   bool
	}{
		{name: "first event settles", state: tree.StateUnknown, event: EventCreated, want: tree.StateSynced},
		{name: "unknown node has nothing to check", state: tree.StateUnknown, event: EventCheck, err: true},
		{name: "upload", state: tree.StateSynced, event: EventIssueUpload, want: tree.StateUploading},
		{name: "conflict", state: tree.StateSynced, event: EventConflicted, want: tree.StateComparing},
		{name: "ack while idle", state: tree.StateSynced, event: EventStorageAck, err: true},
		{name: "upload done", state: tree.StateUploading, event: EventAllDone, want: tree.StateSynced},
		{name: "download cancelled", state: tree.StateDownloading, event: EventCancelAll, want: tree.StateCancelling},
		{name: "node deleted", state: tree.StateDeleting, event: EventNodeDeleted, want: tree.StateUnknown},
		{name: "compare different", state: tree.StateComparing, event: EventResolveDifferent, want: tree.StateResolving},
		{name: "resolving is not cancellable", state: tree.StateResolving, event: EventCancelAll, err: true},
		{name: "resolving ignores modifications", state: tree.StateResolving, event: EventModified, err: true},
		{name: "cancel twice", state: tree.StateCancelling, event: EventCancelAll, err: true},
		{name: "cancelled", state: tree.StateCancelling, event: EventAllCancelled, want: tree.StateSynced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := transition(tt.state, tt.event)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestTransition_EveryBusyStateSettles(t *testing.T) {
	for _, state := range allStates[2:] {
		var settles bool
		for _, next := range transitions[state] {
			if next == tree.StateSynced {
				settles = true
			}
		}
		assert.True(t, settles, "state %s has no way back to synced", state)
	}
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "node_deleted", EventNodeDeleted.String())
	assert.Equal(t, "created", EventCreated.String())
	assert.Equal(t, "event(99)", Event(99).String())
	assert.Len(t, events(), 18)
}

func TestFire_InvalidEventLeavesState(t *testing.T) {
	e, rec := newTestEngine(nil)
	n := seed(t, e, local, file("1", "a.txt"))

	err := e.fire(n, on(EventCheck))

	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, tree.StateUnknown, n.State)
	assert.Empty(t, rec.take())
}
