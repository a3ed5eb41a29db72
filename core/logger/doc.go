// Package logger provides a structured logging facility based on Zap.
//
// New builds a development logger for the debug level and a production
// logger otherwise, writing JSON or colored console output. Level names
// are validated so a typo in the configuration fails at startup.
//
// HTTP handlers derive request loggers with WithRayID, which reads the ray
// ID stored by the rayid middleware. Long running sync components derive
// theirs with ForLink so every line carries the link it belongs to.
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	log.Info("Sync started")
//
//	// In a request handler:
//	l := logger.WithRayID(log, c)
//	l.Error("Query failed", zap.Error(err))
package logger
