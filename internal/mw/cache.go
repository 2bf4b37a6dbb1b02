package mw

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// CacheHeader reports whether a response was served from the cache.
const CacheHeader = "X-Cache"

// snapshot is a stored 2xx response.
type snapshot struct {
	status      int
	contentType string
	body        []byte
}

// recordingWriter tees the response body so it can be stored after the handler ran.
type recordingWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GETs of the same path and query from memory for ttl.
// A request carrying "Cache-Control: no-cache" skips the stored copy and refreshes it.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.Path + "?" + c.Request.URL.RawQuery
		if !forceRefresh(c.Request) {
			if v, ok := store.Get(key); ok {
				snap := v.(snapshot)
				c.Header(CacheHeader, "HIT")
				c.Data(snap.status, snap.contentType, snap.body)
				c.Abort()
				return
			}
		}

		rw := &recordingWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = rw
		c.Header(CacheHeader, "MISS")
		c.Next()

		if status := rw.Status(); status >= 200 && status < 300 {
			store.Set(key, snapshot{
				status:      status,
				contentType: rw.Header().Get("Content-Type"),
				body:        rw.buf.Bytes(),
			}, ttl)
		}
	}
}

func forceRefresh(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Cache-Control")), "no-cache")
}
