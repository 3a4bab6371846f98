package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrServerOffline indicates the remote server is unreachable
	ErrServerOffline = errors.New("remote server is unreachable")

	// ErrAuthFailed indicates the configured credentials were rejected
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNoDuration indicates a probe produced no usable container duration
	ErrNoDuration = errors.New("no duration in probe output")

	// ErrTooLarge indicates a candidate exceeds the full-download size limit
	ErrTooLarge = errors.New("file exceeds maximum download size")

	// ErrUploadRejected indicates the server refused an uploaded thumbnail
	ErrUploadRejected = errors.New("server rejected thumbnail upload")
)
