package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"uikits/internal/core"
)

// requestID assigns a UUID X-Request-ID unless the client sent one and
// carries it on the request context.
func requestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(core.WithRequestID(req.Context(), id)))
		},
	})
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

type bufferedWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *bufferedWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(b)
}

// etag buffers successful GET responses, tags them with an xxhash ETag and
// answers a matching If-None-Match with 304.
func etag(skip func(path string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || (skip != nil && skip(req.URL.Path)) {
				return next(c)
			}

			res := c.Response()
			orig := res.Writer
			bw := &bufferedWriter{ResponseWriter: orig}
			res.Writer = bw
			defer func() {
				if r := recover(); r != nil {
					// Discard the partial body so the recovered error reaches the client.
					res.Writer = orig
					res.Committed = false
					res.Status = http.StatusOK
					res.Size = 0
					panic(r)
				}
			}()
			err := next(c)
			res.Writer = orig

			if bw.status != http.StatusOK {
				if bw.status != 0 {
					orig.WriteHeader(bw.status)
				}
				_, _ = bw.buf.WriteTo(orig)
				return err
			}

			tag := `"` + strconv.FormatUint(xxhash.Sum64(bw.buf.Bytes()), 16) + `"`
			orig.Header().Set("ETag", tag)
			if matchesETag(req.Header.Get("If-None-Match"), tag) {
				orig.Header().Del("Content-Type")
				orig.Header().Del("Content-Length")
				orig.WriteHeader(http.StatusNotModified)
				return err
			}
			orig.WriteHeader(http.StatusOK)
			_, _ = bw.buf.WriteTo(orig)
			return err
		}
	}
}

func matchesETag(header, tag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}
