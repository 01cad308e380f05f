// Package pkg provides shared utilities for the metcore MET stack.
//
// This package contains common functionality used across the router, server,
// controller, and ipc packages, including:
//
//   - Structured, component-tagged logging backed by [go.uber.org/zap]
//   - The MET error taxonomy (Kind) and its wrapping Error type
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps a [go.uber.org/zap.SugaredLogger] with MET
// component context:
//
//	pkg.SetLogLevel(zapcore.DebugLevel)
//	pkg.LogInfo(pkg.ComponentRouter, "mstart synthesized", "trial", idx)
//
// # Errors
//
// MET protocol and lifecycle errors carry one of the 15 Kind values defined
// by met.h:
//
//	var perr *pkg.Error
//	if errors.As(err, &perr) && perr.Kind == pkg.PBCRG {
//	    // cargo out of range for this signal id
//	}
package pkg
