package link

import (
	"time"

	"cloudsync/core/worker"
)

// Remote kinds.
const (
	RemoteS3     = "s3"
	RemoteFolder = "folder"
)

// Settings holds the sync section of the application configuration.
type Settings struct {
	// LocalDir is the directory mirrored to the remote storage.
	LocalDir string `mapstructure:"local_dir" default:"./data/local"`
	// StatePath is the bbolt file holding the persisted sync state.
	StatePath string `mapstructure:"state_path" default:"./data/state.db"`
	// Workers is the number of concurrent task workers.
	Workers int `mapstructure:"workers" default:"5"`
	// MaxRetries bounds attempts of tasks that failed temporarily.
	MaxRetries int `mapstructure:"max_retries" default:"10"`
	// WaitDelayMs is the delay before a deferred task is requeued.
	WaitDelayMs int `mapstructure:"wait_delay_ms" default:"100"`
	// SaveIntervalSeconds is how often the state of each link is saved.
	SaveIntervalSeconds int `mapstructure:"save_interval_seconds" default:"60"`
	// BlockedExtensions lists file extensions that are never uploaded.
	BlockedExtensions []string `mapstructure:"blocked_extensions" default:""`
	// BlockedMimeTypes lists content types that are never uploaded.
	BlockedMimeTypes []string `mapstructure:"blocked_mime_types" default:""`
	// Remote selects the remote backend (s3, folder).
	Remote string `mapstructure:"remote" default:"s3"`
	// FolderDir is the remote directory when Remote is folder.
	FolderDir string `mapstructure:"folder_dir" default:"./data/remote"`
	// PollSeconds is the listing interval of the folder remote.
	PollSeconds int `mapstructure:"poll_seconds" default:"30"`
}

// IsValidRemote checks if the configured remote kind is supported.
func (s Settings) IsValidRemote() bool {
	switch s.Remote {
	case RemoteS3, RemoteFolder:
		return true
	default:
		return false
	}
}

// Graph converts the settings into a graph configuration. Zero values
// fall back to the worker defaults.
func (s Settings) Graph() Config {
	return Config{
		Worker: worker.Config{
			Workers:    s.Workers,
			MaxRetries: s.MaxRetries,
			WaitDelay:  time.Duration(s.WaitDelayMs) * time.Millisecond,
			Policy: worker.Policy{
				BlockedExtensions: compact(s.BlockedExtensions),
				BlockedMimeTypes:  compact(s.BlockedMimeTypes),
			},
		},
		SaveInterval: time.Duration(s.SaveIntervalSeconds) * time.Second,
	}
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
