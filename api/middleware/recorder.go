package middleware

import (
	"bytes"
	"net/http"
)

// statusRecorder remembers the first status code and counts body bytes. When
// capture is set the body is also copied into it.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	capture *bytes.Buffer
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	if r.capture != nil {
		r.capture.Write(b[:n])
	}
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
