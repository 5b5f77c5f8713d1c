package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the smallest body, in bytes, that is compressed
	MinSize int
	// CompressibleTypes are media types eligible for gzip. Stored images are
	// already compressed and are never listed.
	CompressibleTypes []string
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:           1024,
		CompressibleTypes: []string{"application/json", "text/plain"},
	}
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

// gzipResponseWriter buffers up to MinSize bytes, then commits to either a
// gzip or a plain body.
type gzipResponseWriter struct {
	http.ResponseWriter
	config    CompressionConfig
	buffer    []byte
	status    int
	committed bool
	gz        *gzip.Writer
}

func (g *gzipResponseWriter) WriteHeader(status int) {
	if !g.committed {
		g.status = status
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if g.committed {
		if g.gz != nil {
			return g.gz.Write(data)
		}
		return g.ResponseWriter.Write(data)
	}

	g.buffer = append(g.buffer, data...)
	if len(g.buffer) > g.config.MinSize {
		if err := g.commit(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (g *gzipResponseWriter) compressible() bool {
	mediaType, _, _ := strings.Cut(g.Header().Get("Content-Type"), ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	for _, t := range g.config.CompressibleTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

func (g *gzipResponseWriter) commit() error {
	g.committed = true
	body := g.buffer
	g.buffer = nil

	if len(body) >= g.config.MinSize && g.compressible() {
		h := g.Header()
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		g.gz = gzipWriterPool.Get().(*gzip.Writer)
		g.gz.Reset(g.ResponseWriter)
		g.ResponseWriter.WriteHeader(g.status)
		_, err := g.gz.Write(body)
		return err
	}

	g.ResponseWriter.WriteHeader(g.status)
	_, err := g.ResponseWriter.Write(body)
	return err
}

func (g *gzipResponseWriter) Flush() {
	if !g.committed {
		_ = g.commit()
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (g *gzipResponseWriter) close() error {
	if !g.committed {
		if err := g.commit(); err != nil {
			return err
		}
	}
	if g.gz == nil {
		return nil
	}
	err := g.gz.Close()
	gzipWriterPool.Put(g.gz)
	g.gz = nil
	return err
}

// Compression returns a middleware that gzips JSON and text responses for
// clients that accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}

			gzw := &gzipResponseWriter{ResponseWriter: w, config: config, status: http.StatusOK}
			defer gzw.close()

			next.ServeHTTP(gzw, r)
		})
	}
}
