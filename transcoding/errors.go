package transcoding

import (
	"fmt"

	"github.com/t2bot/patient-media-repo/common"
)

type TranscodeError struct {
	Op  string
	Err error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Op, e.Err)
}

func (e *TranscodeError) Unwrap() []error {
	return []error{common.ErrTranscodeFailed, e.Err}
}
