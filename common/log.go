package common

import logging "github.com/ipfs/go-log"

// NewLogger returns a logger scoped to subsystem, matching the
// one-logger-per-package convention used throughout this repository.
func NewLogger(subsystem string) logging.EventLogger {
	return logging.Logger(subsystem)
}
