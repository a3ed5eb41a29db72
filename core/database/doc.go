// Package database handles the optional database connection of the sync
// task log.
//
// It wraps GORM and selects the dialector from the configuration: MySQL for
// shared deployments and SQLite for a single machine or tests (":memory:").
// The connection is verified with a ping bounded by TimeoutSeconds.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    logger.Warn("Task log disabled", zap.Error(err))
//	}
package database
