package middleware

import (
	"log"
	"net/http"
	"time"
)

var requestLogger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

// Logging emits one line per completed request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		requestLogger.Printf("%s %s %d %s op=%s",
			r.Method, r.URL.Path, rec.status,
			time.Since(start).Round(time.Millisecond),
			OperatorID(r.Context()))
	})
}
