package proxy

import "net/http"

// ResponseRecorder wraps the client writer and remembers what the access
// log needs: status, bytes, cache status and error category.
type ResponseRecorder struct {
	writer        http.ResponseWriter
	status        int
	bytesWritten  int64
	wroteHeader   bool
	cacheStatus   string
	errorCategory string
}

type errorCategoryWriter interface {
	SetErrorCategory(string)
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{writer: w, status: http.StatusOK}
}

func (r *ResponseRecorder) Header() http.Header {
	return r.writer.Header()
}

func (r *ResponseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	if r.cacheStatus != "" {
		r.writer.Header().Set(CacheStatusHeader, r.cacheStatus)
	}
	r.writer.WriteHeader(status)
}

func (r *ResponseRecorder) Write(data []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.writer.Write(data)
	r.bytesWritten += int64(n)
	return n, err
}

func (r *ResponseRecorder) Flush() {
	if flusher, ok := r.writer.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *ResponseRecorder) Status() int {
	return r.status
}

func (r *ResponseRecorder) BytesWritten() int64 {
	return r.bytesWritten
}

// SetCacheStatus records the fetch source; it is sent as X-Cache-Status
// when the header is written.
func (r *ResponseRecorder) SetCacheStatus(status string) {
	r.cacheStatus = status
}

func (r *ResponseRecorder) CacheStatus() string {
	return r.cacheStatus
}

func (r *ResponseRecorder) SetErrorCategory(category string) {
	r.errorCategory = category
}

func (r *ResponseRecorder) ErrorCategory() string {
	return r.errorCategory
}

func (r *ResponseRecorder) WroteHeader() bool {
	return r.wroteHeader
}
