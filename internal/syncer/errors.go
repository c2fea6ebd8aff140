package syncer

import (
	"errors"
	"fmt"

	"SOSBeacon/internal/apiclient"
	"SOSBeacon/internal/pending"
	pkgerrors "SOSBeacon/pkg/errors"
)

// Client-side failure taxonomy.
var (
	// ErrValidation: the payload is malformed and must be corrected, not resent.
	ErrValidation = pkgerrors.ErrValidation
	// ErrTransport: no response from the server; retried on the next trigger.
	ErrTransport = apiclient.ErrTransport
	// ErrStorageUnavailable: the local queue cannot be read or written.
	ErrStorageUnavailable = pending.ErrStorageUnavailable
)

// RejectedError is a response the server refused (ServerRejected).
type RejectedError = apiclient.RejectedError

type disposition int

const (
	// stop the drain and keep this record and everything after it
	dispositionStop disposition = iota
	// keep the record out of later drains and move on
	dispositionReject
)

// classify applies the rejection policy to a failed submission.
func classify(err error) disposition {
	var rej *RejectedError
	if errors.As(err, &rej) && rej.Validation() {
		return dispositionReject
	}
	return dispositionStop
}

func asStorageError(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
