package core

import (
	"bytes"
	"net/http"

	"golang.org/x/text/language"
)

// DefaultBufferSize is the response buffer size used when none is set.
const DefaultBufferSize = 8 * 1024

// Response is the outbound response as seen by handlers and filters.
// It satisfies http.ResponseWriter so plain net/http code can write to it.
//
// Output is buffered until Flush is called or the buffer overflows; from then
// on the response is committed and status and headers can no longer change.
type Response interface {
	http.ResponseWriter
	Status() int
	SetContentType(contentType string)
	SetBufferSize(size int)
	BufferSize() int
	SetLocale(tag string)
	AddCookie(cookie *http.Cookie)
	SendError(code int, message string) error
	Committed() bool
	ResetBuffer() error
	Reset() error
	Flush() error
}

// ResponseFacade adapts a transport http.ResponseWriter into a Response.
type ResponseFacade struct {
	w          http.ResponseWriter
	status     int
	buf        bytes.Buffer
	bufferSize int
	committed  bool
	finished   bool
}

// NewResponseFacade wraps w with a buffer of DefaultBufferSize.
func NewResponseFacade(w http.ResponseWriter) *ResponseFacade {
	return &ResponseFacade{w: w, bufferSize: DefaultBufferSize}
}

func (f *ResponseFacade) Header() http.Header { return f.w.Header() }

func (f *ResponseFacade) WriteHeader(code int) {
	if f.committed || f.finished {
		return
	}
	f.status = code
}

func (f *ResponseFacade) Write(p []byte) (int, error) {
	if f.finished {
		return 0, ErrResponseFinished
	}
	if f.committed {
		return f.w.Write(p)
	}
	n, _ := f.buf.Write(p)
	if f.buf.Len() > f.bufferSize {
		if err := f.commit(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (f *ResponseFacade) Status() int {
	if f.status == 0 {
		return http.StatusOK
	}
	return f.status
}

func (f *ResponseFacade) SetContentType(contentType string) {
	if f.committed || f.finished {
		return
	}
	f.Header().Set("Content-Type", contentType)
}

func (f *ResponseFacade) SetBufferSize(size int) {
	if f.committed || f.buf.Len() > 0 || size <= 0 {
		return
	}
	f.bufferSize = size
}

func (f *ResponseFacade) BufferSize() int { return f.bufferSize }

// SetLocale sets Content-Language to the canonical form of a BCP 47 tag.
// Tags that do not parse are ignored.
func (f *ResponseFacade) SetLocale(tag string) {
	if f.committed || f.finished {
		return
	}
	t, err := language.Parse(tag)
	if err != nil {
		return
	}
	f.Header().Set("Content-Language", t.String())
}

func (f *ResponseFacade) AddCookie(cookie *http.Cookie) {
	if f.committed || f.finished || cookie == nil {
		return
	}
	if v := cookie.String(); v != "" {
		f.Header().Add("Set-Cookie", v)
	}
}

// SendError discards buffered output, writes a plain text error body and
// finishes the response.
func (f *ResponseFacade) SendError(code int, message string) error {
	if f.committed {
		return ErrResponseCommitted
	}
	f.buf.Reset()
	f.status = code
	f.Header().Set("Content-Type", "text/plain; charset=utf-8")
	f.Header().Set("X-Content-Type-Options", "nosniff")
	if message == "" {
		message = http.StatusText(code)
	}
	f.buf.WriteString(message)
	return f.Finish()
}

func (f *ResponseFacade) Committed() bool { return f.committed }

// Finished reports whether the response was finished and accepts no more output.
func (f *ResponseFacade) Finished() bool { return f.finished }

func (f *ResponseFacade) ResetBuffer() error {
	if f.committed {
		return ErrResponseCommitted
	}
	f.buf.Reset()
	return nil
}

// Reset discards buffered output, status and headers.
func (f *ResponseFacade) Reset() error {
	if f.committed {
		return ErrResponseCommitted
	}
	f.buf.Reset()
	f.status = 0
	clear(f.w.Header())
	return nil
}

func (f *ResponseFacade) Flush() error {
	if f.finished {
		return nil
	}
	if err := f.commit(); err != nil {
		return err
	}
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return nil
}

// Finish commits buffered output and marks the response non-writable.
// It is safe to call more than once.
func (f *ResponseFacade) Finish() error {
	if f.finished {
		return nil
	}
	err := f.commit()
	f.finished = true
	return err
}

// Close finishes the response.
func (f *ResponseFacade) Close() error { return f.Finish() }

func (f *ResponseFacade) commit() error {
	if !f.committed {
		f.committed = true
		f.w.WriteHeader(f.Status())
	}
	if f.buf.Len() == 0 {
		return nil
	}
	_, err := f.w.Write(f.buf.Bytes())
	f.buf.Reset()
	return err
}
