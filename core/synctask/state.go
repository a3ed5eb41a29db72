package synctask

// State is the execution state of a task.
type State uint8

const (
	Unexecuted State = iota
	Successful
	CurrentlyNotPossible
	NotAvailable
	InvalidOperation
	InvalidAuthentication
	VersionIdMismatch
	Cancelled
	Blocked
	EncryptionActivationRequired
)

var stateNames = [...]string{
	Unexecuted:                   "unexecuted",
	Successful:                   "successful",
	CurrentlyNotPossible:         "currently_not_possible",
	NotAvailable:                 "not_available",
	InvalidOperation:             "invalid_operation",
	InvalidAuthentication:        "invalid_authentication",
	VersionIdMismatch:            "version_id_mismatch",
	Cancelled:                    "cancelled",
	Blocked:                      "blocked",
	EncryptionActivationRequired: "encryption_activation_required",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "invalid"
}

// Kind identifies the task variant.
type Kind uint8

const (
	KindUpload Kind = iota
	KindDownload
	KindCreateDir
	KindDelete
	KindMove
	KindCompare
	KindFetchTree
	KindCancel
)

var kindNames = [...]string{
	KindUpload:    "upload",
	KindDownload:  "download",
	KindCreateDir: "create_dir",
	KindDelete:    "delete",
	KindMove:      "move",
	KindCompare:   "compare",
	KindFetchTree: "fetch_tree",
	KindCancel:    "cancel",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}
