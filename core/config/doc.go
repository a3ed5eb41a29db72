// Package config provides configuration management for cloudsync.
//
// It utilizes Viper for loading configuration from an optional config.yaml,
// environment variables and a .env file. Defaults come from the `default`
// struct tags of each section.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP query server settings (port, API key, enabled)
//   - Storage: S3/MinIO credentials, bucket, prefix and poll interval
//   - Log: Logging level and format
//   - Database: optional task log database (MySQL or SQLite)
//   - Sync: local directory, state file, workers, retries and upload policy
//
// Environment variables map to nested keys by replacing dots with
// underscores, e.g. SYNC_LOCAL_DIR sets sync.local_dir.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Sync.LocalDir)
package config
