package reconcile

import (
	"errors"
	"fmt"

	"cloudsync/core/tree"

	"go.uber.org/zap"
)

// ErrInvalidTransition is returned when an event is not defined for the
// current state of a node.
var ErrInvalidTransition = errors.New("invalid state transition")

// Event drives the per-node state machine.
type Event uint8

const (
	EventCreated Event = iota
	EventModified
	EventDeleted
	EventCheck
	EventIssueUpload
	EventIssueDownload
	EventIssueDelete
	EventConflicted
	EventStorageAck
	EventCompareAck
	EventEqual
	EventResolveDifferent
	EventMoveSucceeded
	EventMoveFailed
	EventCancelAll
	EventAllCancelled
	EventAllDone
	EventNodeDeleted
)

var eventNames = [...]string{
	EventCreated:          "created",
	EventModified:         "modified",
	EventDeleted:          "deleted",
	EventCheck:            "check",
	EventIssueUpload:      "issue_upload",
	EventIssueDownload:    "issue_download",
	EventIssueDelete:      "issue_delete",
	EventConflicted:       "conflicted",
	EventStorageAck:       "storage_ack",
	EventCompareAck:       "compare_ack",
	EventEqual:            "equal",
	EventResolveDifferent: "resolve_different",
	EventMoveSucceeded:    "move_succeeded",
	EventMoveFailed:       "move_failed",
	EventCancelAll:        "cancel_all",
	EventAllCancelled:     "all_cancelled",
	EventAllDone:          "all_done",
	EventNodeDeleted:      "node_deleted",
}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", e)
}

// events lists every event, used to enumerate the table.
func events() []Event {
	out := make([]Event, 0, len(eventNames))
	for i := range eventNames {
		out = append(out, Event(i))
	}
	return out
}

// transitions is the complete table. A destination equal to the source is
// a self transition that re-runs the on-enter handler.
var transitions = map[tree.SyncState]map[Event]tree.SyncState{
	tree.StateUnknown: {
		EventCreated:  tree.StateSynced,
		EventModified: tree.StateSynced,
	},
	tree.StateSynced: {
		EventCreated:       tree.StateSynced,
		EventModified:      tree.StateSynced,
		EventDeleted:       tree.StateSynced,
		EventCheck:         tree.StateSynced,
		EventIssueUpload:   tree.StateUploading,
		EventIssueDownload: tree.StateDownloading,
		EventIssueDelete:   tree.StateDeleting,
		EventConflicted:    tree.StateComparing,
	},
	tree.StateUploading: {
		EventStorageAck: tree.StateUploading,
		EventCreated:    tree.StateUploading,
		EventModified:   tree.StateUploading,
		EventDeleted:    tree.StateUploading,
		EventAllDone:    tree.StateSynced,
		EventCancelAll:  tree.StateCancelling,
	},
	tree.StateDownloading: {
		EventStorageAck: tree.StateDownloading,
		EventCreated:    tree.StateDownloading,
		EventModified:   tree.StateDownloading,
		EventDeleted:    tree.StateDownloading,
		EventAllDone:    tree.StateSynced,
		EventCancelAll:  tree.StateCancelling,
	},
	tree.StateDeleting: {
		EventStorageAck:  tree.StateDeleting,
		EventCreated:     tree.StateDeleting,
		EventModified:    tree.StateDeleting,
		EventDeleted:     tree.StateDeleting,
		EventAllDone:     tree.StateSynced,
		EventCancelAll:   tree.StateCancelling,
		EventNodeDeleted: tree.StateUnknown,
	},
	tree.StateComparing: {
		EventCreated:          tree.StateComparing,
		EventModified:         tree.StateComparing,
		EventDeleted:          tree.StateComparing,
		EventCompareAck:       tree.StateComparing,
		EventEqual:            tree.StateSynced,
		EventResolveDifferent: tree.StateResolving,
		EventCancelAll:        tree.StateCancelling,
	},
	tree.StateResolving: {
		EventMoveSucceeded: tree.StateResolving,
		EventMoveFailed:    tree.StateResolving,
		EventCreated:       tree.StateResolving,
		EventDeleted:       tree.StateResolving,
		EventAllDone:       tree.StateSynced,
	},
	tree.StateCancelling: {
		EventCreated:      tree.StateCancelling,
		EventModified:     tree.StateCancelling,
		EventDeleted:      tree.StateCancelling,
		EventStorageAck:   tree.StateCancelling,
		EventAllCancelled: tree.StateSynced,
	},
}

// transition looks up the destination of event in state.
func transition(state tree.SyncState, event Event) (tree.SyncState, error) {
	if next, ok := transitions[state][event]; ok {
		return next, nil
	}
	return state, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, state)
}

// trigger is an event together with its arguments.
type trigger struct {
	event Event
	// targets of an upload or delete.
	targets []string
	// source of a download.
	source string
	// groups of storages with equal content, for ResolveDifferent.
	groups [][]string
}

func on(event Event) trigger { return trigger{event: event} }

// fire runs one transition on n: the before handler of the event, the state
// change and the on-enter handler of the destination. Handlers may fire
// further events on the same node.
func (e *Engine) fire(n *tree.Node, t trigger) error {
	next, err := transition(n.State, t.event)
	if err != nil {
		return fmt.Errorf("%s: %w", n.Path(), err)
	}

	if ce := e.logger.Check(zap.DebugLevel, "Transition"); ce != nil {
		ce.Write(
			zap.Stringer("path", n.Path()),
			zap.Stringer("event", t.event),
			zap.Stringer("from", n.State),
			zap.Stringer("to", next),
		)
	}

	switch t.event {
	case EventIssueUpload:
		e.issueUpload(n, t.targets)
	case EventIssueDownload:
		e.issueDownload(n, t.source)
	case EventIssueDelete:
		e.issueDelete(n, t.targets)
	case EventConflicted:
		e.issueCompare(n)
	case EventResolveDifferent:
		e.issueMoves(n, t.groups)
	case EventCancelAll:
		e.issueCancel(n)
	}

	n.State = next

	switch next {
	case tree.StateSynced:
		return e.onSynced(n)
	case tree.StateUploading:
		return e.onCopying(n, true)
	case tree.StateDownloading:
		return e.onCopying(n, false)
	case tree.StateDeleting:
		return e.onDeleting(n)
	case tree.StateComparing:
		return e.onComparing(n)
	case tree.StateResolving:
		return e.onResolving(n)
	case tree.StateCancelling:
		return e.onCancelling(n)
	}
	return nil
}
