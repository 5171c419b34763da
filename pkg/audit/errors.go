// Package audit records version-control events for external consumers
package audit

import "errors"

var (
	// ErrCorrupted indicates a journal record failed its CRC check
	ErrCorrupted = errors.New("audit: corrupted record")

	// ErrTruncated indicates a journal record was cut short
	ErrTruncated = errors.New("audit: truncated record")

	// ErrJournalClosed indicates a write to a closed journal
	ErrJournalClosed = errors.New("audit: journal closed")

	// ErrJournalNotFound indicates no journal files exist at the path
	ErrJournalNotFound = errors.New("audit: journal not found")
)
