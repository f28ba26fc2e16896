package responses

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

// HttpResponse is a fully decided response. Nothing about it depends on the
// transport, so it can be built and inspected without a live connection.
type HttpResponse struct {
	StatusCode    int
	Headers       http.Header
	Body          io.ReadCloser
	ContentLength int64
}

func SetSecurityHeaders(h http.Header) {
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Content-Security-Policy", "sandbox; default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("X-Robots-Tag", "noindex, nofollow, noarchive, noimageindex")
}

func JsonResponse(statusCode int, v interface{}) *HttpResponse {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err) // only our own types are marshalled here
	}
	headers := http.Header{}
	SetSecurityHeaders(headers)
	headers.Set("Content-Type", "application/json")
	headers.Set("Cache-Control", "no-store")
	return &HttpResponse{
		StatusCode:    statusCode,
		Headers:       headers,
		Body:          io.NopCloser(bytes.NewReader(b)),
		ContentLength: int64(len(b)),
	}
}

func ErrorHttpResponse(e *ErrorResponse) *HttpResponse {
	return JsonResponse(e.StatusCode(), e)
}

func (r *HttpResponse) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// WriteTo sends the response and closes its body.
func (r *HttpResponse) WriteTo(w http.ResponseWriter) (int64, error) {
	defer r.Close()
	headers := w.Header()
	for k, v := range r.Headers {
		headers[k] = v
	}
	if r.Body != nil && r.ContentLength >= 0 {
		headers.Set("Content-Length", strconv.FormatInt(r.ContentLength, 10))
	}
	w.WriteHeader(r.StatusCode)
	if r.Body == nil {
		return 0, nil
	}
	return io.Copy(w, r.Body)
}
