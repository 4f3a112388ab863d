package logging

import (
	"log/slog"
)

// WithModel creates a logger with cost-model context.
// Use this to automatically include the model name in all logs.
//
// Example:
//
//	log := logging.WithModel("statistical")
//	log.Info("weights adjusted")
//	log.Debug("estimating", "collection", name)
func WithModel(modelName string) *slog.Logger {
	return GetLogger().With("model", modelName)
}

// WithCollection creates a logger with collection context.
// Use this for statistics and per-collection estimation paths.
//
// Example:
//
//	log := logging.WithCollection("orders")
//	log.Debug("statistics resolved", "rows", rowCount)
func WithCollection(collection string) *slog.Logger {
	return GetLogger().With("collection", collection)
}

// WithModelCollection creates a logger with both model and collection context.
//
// Example:
//
//	log := logging.WithModelCollection("memory", "orders")
//	log.Debug("usage estimated", "bytes", totalUsage)
func WithModelCollection(modelName, collection string) *slog.Logger {
	return GetLogger().With("model", modelName, "collection", collection)
}

// WithNode creates a logger with plan-node context.
// Useful when walking plan trees during estimation or feedback.
//
// Example:
//
//	log := logging.WithNode("node-0-1")
//	log.Debug("node costed", "cost", nodeCost)
func WithNode(nodeID string) *slog.Logger {
	return GetLogger().With("node_id", nodeID)
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("pushdown")
//	log.Info("component initialized")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
// Use this when logging errors to include the error in structured format.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("estimation failed", "model", name)
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
