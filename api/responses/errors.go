package responses

import (
	"errors"
	"net/http"

	"github.com/t2bot/patient-media-repo/common"
)

type ErrorResponse struct {
	Code         string `json:"errcode"`
	Message      string `json:"error"`
	InternalCode string `json:"-"`
}

func InternalServerError(message string) *ErrorResponse {
	return &ErrorResponse{common.ErrCodeUnknown, message, common.ErrCodeUnknown}
}

func MethodNotAllowed() *ErrorResponse {
	return &ErrorResponse{common.ErrCodeMethodNotAllowed, "Method Not Allowed", common.ErrCodeMethodNotAllowed}
}

func RateLimitReached() *ErrorResponse {
	return &ErrorResponse{common.ErrCodeRateLimitExceeded, "Rate Limited", common.ErrCodeRateLimitExceeded}
}

func NotFoundError() *ErrorResponse {
	return &ErrorResponse{common.ErrCodeNotFound, "Not found", common.ErrCodeNotFound}
}

func NotYetUploaded() *ErrorResponse {
	return &ErrorResponse{common.ErrCodeNotYetUploaded, "Media is still being processed", common.ErrCodeNotYetUploaded}
}

func AuthFailed() *ErrorResponse {
	return &ErrorResponse{common.ErrCodeUnknownToken, "Authentication Failed", common.ErrCodeUnknownToken}
}

func Forbidden() *ErrorResponse {
	return &ErrorResponse{common.ErrCodeForbidden, "Forbidden", common.ErrCodeForbidden}
}

func BadRequest(message string) *ErrorResponse {
	return &ErrorResponse{common.ErrCodeBadRequest, message, common.ErrCodeBadRequest}
}

func TranscodeFailed() *ErrorResponse {
	return &ErrorResponse{common.ErrCodeTranscodeFailed, "The video could not be converted", common.ErrCodeTranscodeFailed}
}

func StorageUnavailable() *ErrorResponse {
	return &ErrorResponse{common.ErrCodeStorageUnavailable, "Storage is temporarily unavailable, try again later", common.ErrCodeStorageUnavailable}
}

func StillReferenced() *ErrorResponse {
	return &ErrorResponse{common.ErrCodeStillReferenced, "Media is still referenced", common.ErrCodeStillReferenced}
}

var rejectionMessages = map[common.RejectionReason]string{
	common.RejectTooLarge:            "The file is too large",
	common.RejectKindMismatch:        "The file type does not match its name or declared type",
	common.RejectDisallowedExtension: "The file extension is not allowed",
	common.RejectMalformedContent:    "The file could not be read as a supported image or video",
	common.RejectDurationExceeded:    "The video is too long",
	common.RejectUnsafeFilename:      "The file name is not allowed",
}

// Rejected describes a rejection to the user. The rejection detail stays
// in the logs.
func Rejected(r *common.Rejection) *ErrorResponse {
	code := common.ErrCodeForRejection(r.Reason)
	return &ErrorResponse{code, rejectionMessages[r.Reason], code}
}

// ErrorFrom maps a pipeline error onto its public response. Unknown errors
// become a generic server error without any detail.
func ErrorFrom(err error) *ErrorResponse {
	if r, ok := common.AsRejection(err); ok {
		return Rejected(r)
	}
	switch {
	case errors.Is(err, common.ErrMediaNotFound):
		return NotFoundError()
	case errors.Is(err, common.ErrMediaNotReady):
		return NotYetUploaded()
	case errors.Is(err, common.ErrRateLimitExceeded):
		return RateLimitReached()
	case errors.Is(err, common.ErrTranscodeFailed):
		return TranscodeFailed()
	case errors.Is(err, common.ErrStorageUnavailable):
		return StorageUnavailable()
	case errors.Is(err, common.ErrStillReferenced):
		return StillReferenced()
	case errors.Is(err, common.ErrNotAuthorized):
		return Forbidden()
	case errors.Is(err, common.ErrSeriesInvalid):
		return BadRequest(err.Error())
	}
	return InternalServerError("unexpected error")
}

func (e *ErrorResponse) StatusCode() int {
	switch e.InternalCode {
	case common.ErrCodeUnknownToken:
		return http.StatusUnauthorized
	case common.ErrCodeNotFound:
		return http.StatusNotFound
	case common.ErrCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case common.ErrCodeKindMismatch, common.ErrCodeDisallowedExtension, common.ErrCodeMalformedContent,
		common.ErrCodeDurationExceeded, common.ErrCodeUnsafeFilename, common.ErrCodeTranscodeFailed:
		return http.StatusUnprocessableEntity
	case common.ErrCodeBadRequest:
		return http.StatusBadRequest
	case common.ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case common.ErrCodeForbidden:
		return http.StatusForbidden
	case common.ErrCodeStillReferenced:
		return http.StatusConflict
	case common.ErrCodeNotYetUploaded:
		return http.StatusGatewayTimeout
	case common.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case common.ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
