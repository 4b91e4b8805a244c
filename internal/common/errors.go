package common

import "errors"

var (
	// Validation errors.
	ErrInvalidPercentage = errors.New("local percentage must be between 0 and 100")
	ErrInvalidLevel      = errors.New("compression level must be between 0 and 9")

	// Archive format errors.
	ErrBadMagic         = errors.New("unrecognized archive magic")
	ErrTruncatedArchive = errors.New("truncated archive")

	// Integrity errors. A ciphertext authentication failure means the
	// encrypted blob was tampered with or corrupted in transit.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrCiphertextAuth   = errors.New("ciphertext authentication failed")

	// Transfer errors. ErrServerUnavailable marks transient conditions that
	// were already retried; ErrPermanentServer marks responses that must not
	// be retried.
	ErrUnauthorized      = errors.New("unauthorized")
	ErrServerUnavailable = errors.New("server unavailable")
	ErrPermanentServer   = errors.New("server rejected request")

	// Engine errors.
	ErrNoCloudData = errors.New("no cloud data available")
	ErrCancelled   = errors.New("operation cancelled")
	ErrBusy        = errors.New("operation already in progress")
)
