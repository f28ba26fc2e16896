package pipeline_download

import (
	"strconv"
	"strings"
)

type byteRange struct {
	start int64
	end   int64 // inclusive
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

// parseRange interprets a Range header against a resource of size bytes.
// Headers we do not understand (other units, bad syntax, several ranges)
// are ignored and the full resource is served. satisfiable is false when
// a well formed single range lies entirely outside the resource.
func parseRange(header string, size int64) (r *byteRange, satisfiable bool) {
	if header == "" || !strings.HasPrefix(header, "bytes=") {
		return nil, true
	}
	spec := strings.TrimSpace(header[len("bytes="):])
	if spec == "" || strings.Contains(spec, ",") {
		return nil, true
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, true
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		// Suffix form: the last n bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return nil, true
		}
		if n == 0 || size == 0 {
			return nil, false
		}
		if n > size {
			n = size
		}
		return &byteRange{start: size - n, end: size - 1}, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, true
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return nil, true
		}
		if end > size-1 {
			end = size - 1
		}
	}
	if start >= size {
		return nil, false
	}
	return &byteRange{start: start, end: end}, true
}
