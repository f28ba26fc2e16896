package common

import (
	"errors"
	"fmt"
)

var ErrMediaNotFound = errors.New("media not found")
var ErrMediaNotReady = errors.New("media is still being processed")
var ErrRateLimitExceeded = errors.New("rate limit exceeded")
var ErrTranscodeFailed = errors.New("video could not be converted")
var ErrStorageUnavailable = errors.New("storage unavailable")
var ErrIdTaken = errors.New("generated id already in use")
var ErrPathExists = errors.New("storage path already exists")
var ErrInvalidPath = errors.New("storage path is not a generated path")
var ErrSeriesInvalid = errors.New("series contains unusable media")
var ErrStillReferenced = errors.New("media is still referenced")
var ErrNotAuthorized = errors.New("not authorized")

// RejectionReason is the closed set of reasons an upload can be refused for.
type RejectionReason string

const (
	RejectTooLarge            RejectionReason = "TooLarge"
	RejectKindMismatch        RejectionReason = "KindMismatch"
	RejectDisallowedExtension RejectionReason = "DisallowedExtension"
	RejectMalformedContent    RejectionReason = "MalformedContent"
	RejectDurationExceeded    RejectionReason = "DurationExceeded"
	RejectUnsafeFilename      RejectionReason = "UnsafeFilename"
)

var AllRejectionReasons = []RejectionReason{
	RejectTooLarge,
	RejectKindMismatch,
	RejectDisallowedExtension,
	RejectMalformedContent,
	RejectDurationExceeded,
	RejectUnsafeFilename,
}

// Rejection is a user-recoverable validation failure. Detail is for logs only.
type Rejection struct {
	Reason RejectionReason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "upload rejected: " + string(r.Reason)
	}
	return fmt.Sprintf("upload rejected: %s (%s)", r.Reason, r.Detail)
}

func Reject(reason RejectionReason, detail string, args ...interface{}) *Rejection {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Rejection{Reason: reason, Detail: detail}
}

// AsRejection unwraps err into a *Rejection, if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

func IsRejection(err error, reason RejectionReason) bool {
	r, ok := AsRejection(err)
	return ok && r.Reason == reason
}
