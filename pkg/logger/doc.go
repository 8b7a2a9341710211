// Package logger provides a structured logging interface for the archive
// crawler.
//
// It wraps the zerolog library to provide a clean, easy-to-use API with support for:
// - Multiple log levels (Debug, Info, Warn, Error, Fatal)
// - Structured logging with fields
// - Pretty console output with colors
// - Optional file output
// - Global logger instance for easy access
//
// Basic Usage:
//
//	import "newsagger/pkg/logger"
//
//	// Initialize the global logger
//	cfg := &config.LoggingConfig{
//	    Level: "info",
//	}
//	err := logger.Initialize(cfg)
//
//	// Use the global logger
//	logger.Info("Crawl started")
//	logger.WithField("lccn", "sn86069873").Info("Discovering issues")
//	logger.WithError(err).Error("Failed to fetch page")
//
// Advanced Usage:
//
//	// Create a logger instance with fields
//	log := logger.GetLogger().
//	    WithField("component", "discovery").
//	    WithField("facet_id", 12)
//
//	// Use structured logging
//	log.InfoWithFields("Facet page stored", map[string]interface{}{
//	    "page":  3,
//	    "items": 100,
//	})
package logger
