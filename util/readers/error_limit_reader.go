package readers

import (
	"io"

	"github.com/t2bot/patient-media-repo/common"
)

// LimitReaderWithOverrunError reads at most n bytes from r. Exactly n bytes is
// fine; if the stream has anything left after that, reads fail with a
// TooLarge rejection.
// maxConsecutiveEmptyReads matches bufio's tolerance for readers returning
// (0, nil) before giving up with io.ErrNoProgress.
const maxConsecutiveEmptyReads = 100

func LimitReaderWithOverrunError(r io.Reader, n int64) io.Reader {
	return &limitedReader{r: r, n: n, limit: n}
}

type limitedReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (r *limitedReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.n <= 0 {
		// See if we can read one more byte, indicating the stream is too big
		b := make([]byte, 1)
		for i := 0; i < maxConsecutiveEmptyReads; i++ {
			n, err := r.r.Read(b)
			if n > 0 {
				return 0, common.Reject(common.RejectTooLarge, "upload exceeds %d bytes", r.limit)
			}
			if err != nil {
				if err == io.EOF {
					return 0, io.EOF
				}
				return 0, err
			}
		}
		return 0, io.ErrNoProgress
	}

	if int64(len(p)) > r.n {
		p = p[:r.n]
	}
	n, err := r.r.Read(p)
	r.n -= int64(n)
	return n, err
}
