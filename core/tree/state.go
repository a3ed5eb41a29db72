package tree

// SyncState is the reconciliation state of a node.
type SyncState uint8

const (
	StateUnknown SyncState = iota
	StateSynced
	StateUploading
	StateDownloading
	StateDeleting
	StateComparing
	StateResolving
	StateCancelling
)

var stateNames = [...]string{
	StateUnknown:     "unknown",
	StateSynced:      "synced",
	StateUploading:   "uploading",
	StateDownloading: "downloading",
	StateDeleting:    "deleting",
	StateComparing:   "comparing",
	StateResolving:   "resolving",
	StateCancelling:  "cancelling",
}

func (s SyncState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "invalid"
}
