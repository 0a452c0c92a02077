// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type encoding string

const (
	encodingNone   encoding = ""
	encodingZstd   encoding = "zstd"
	encodingBrotli encoding = "br"
	encodingGzip   encoding = "gzip"
)

// Compress encodes JSON and text responses with the best encoding the
// client accepts. Images and event streams pass through untouched.
func Compress(level int) func(http.Handler) http.Handler {
	level = min(max(level, 1), 9)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			enc := negotiate(r.Header.Get("Accept-Encoding"))
			if enc == encodingNone {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Accept-Encoding")
			cw := &compressWriter{ResponseWriter: w, encoding: enc, level: level}
			defer cw.Close()

			next.ServeHTTP(cw, r)
		})
	}
}

type compressWriter struct {
	http.ResponseWriter
	encoding    encoding
	level       int
	writer      io.WriteCloser
	wroteHeader bool
}

func (w *compressWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	h := w.Header()
	if code != http.StatusNoContent && code != http.StatusNotModified &&
		h.Get("Content-Encoding") == "" && compressible(h.Get("Content-Type")) {
		if enc, err := w.newEncoder(); err == nil {
			h.Set("Content-Encoding", string(w.encoding))
			h.Del("Content-Length")
			w.writer = enc
		}
	}

	w.ResponseWriter.WriteHeader(code)
}

func (w *compressWriter) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(data))
		}
		w.WriteHeader(http.StatusOK)
	}
	if w.writer != nil {
		return w.writer.Write(data)
	}
	return w.ResponseWriter.Write(data)
}

func (w *compressWriter) Flush() {
	if f, ok := w.writer.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *compressWriter) Close() error {
	if w.writer == nil {
		return nil
	}
	return w.writer.Close()
}

func (w *compressWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *compressWriter) newEncoder() (io.WriteCloser, error) {
	switch w.encoding {
	case encodingZstd:
		return zstd.NewWriter(w.ResponseWriter, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(w.level)))
	case encodingBrotli:
		return brotli.NewWriterLevel(w.ResponseWriter, w.level), nil
	default:
		return gzip.NewWriterLevel(w.ResponseWriter, w.level)
	}
}

func compressible(contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "text/event-stream") {
		return false
	}
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "javascript")
}

// negotiate picks zstd, then brotli, then gzip among the encodings the
// client accepts with a non-zero quality.
func negotiate(header string) encoding {
	accepted := make(map[string]bool)
	for part := range strings.SplitSeq(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}
		if name == "*" {
			for _, enc := range []encoding{encodingZstd, encodingBrotli, encodingGzip} {
				if _, set := accepted[string(enc)]; !set {
					accepted[string(enc)] = q > 0
				}
			}
			continue
		}
		accepted[name] = q > 0
	}

	for _, enc := range []encoding{encodingZstd, encodingBrotli, encodingGzip} {
		if accepted[string(enc)] {
			return enc
		}
	}
	return encodingNone
}
