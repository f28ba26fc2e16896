package common

const ErrCodeNotFound = "M_NOT_FOUND"
const ErrCodeNotYetUploaded = "M_NOT_YET_UPLOADED"
const ErrCodeUnknownToken = "M_UNKNOWN_TOKEN"
const ErrCodeForbidden = "M_FORBIDDEN"
const ErrCodeTooLarge = "M_TOO_LARGE"
const ErrCodeKindMismatch = "M_KIND_MISMATCH"
const ErrCodeDisallowedExtension = "M_DISALLOWED_EXTENSION"
const ErrCodeMalformedContent = "M_MALFORMED_CONTENT"
const ErrCodeDurationExceeded = "M_DURATION_EXCEEDED"
const ErrCodeUnsafeFilename = "M_UNSAFE_FILENAME"
const ErrCodeTranscodeFailed = "M_TRANSCODE_FAILED"
const ErrCodeStorageUnavailable = "M_STORAGE_UNAVAILABLE"
const ErrCodeStillReferenced = "M_STILL_REFERENCED"
const ErrCodeMethodNotAllowed = "M_METHOD_NOT_ALLOWED"
const ErrCodeBadRequest = "M_BAD_REQUEST"
const ErrCodeRateLimitExceeded = "M_LIMIT_EXCEEDED"
const ErrCodeUnknown = "M_UNKNOWN"

// ErrCodeForRejection maps a rejection reason onto its public error code.
func ErrCodeForRejection(reason RejectionReason) string {
	switch reason {
	case RejectTooLarge:
		return ErrCodeTooLarge
	case RejectKindMismatch:
		return ErrCodeKindMismatch
	case RejectDisallowedExtension:
		return ErrCodeDisallowedExtension
	case RejectMalformedContent:
		return ErrCodeMalformedContent
	case RejectDurationExceeded:
		return ErrCodeDurationExceeded
	case RejectUnsafeFilename:
		return ErrCodeUnsafeFilename
	default:
		return ErrCodeUnknown
	}
}
