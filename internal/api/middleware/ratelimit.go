// ratelimit.go — ограничение частоты запросов к публичным endpoints
// (ulule/limiter, хранилище в памяти процесса).
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ulule/limiter/v3"
	limiterhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	apierrors "github.com/bigkaa/stockflow/internal/api/errors"
)

// RateLimit создаёт middleware по лимиту в формате limiter ("30-M", "5-S").
// Ключ — IP клиента.
func RateLimit(formatted string, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("некорректный лимит запросов %q: %w", formatted, err)
	}
	instance := limiter.New(memory.NewStore(), rate)

	mw := limiterhttp.NewMiddleware(instance,
		limiterhttp.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("Превышен лимит запросов",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			apierrors.TooManyRequests(w, "Too many requests. Please try again later.")
		}),
	)
	return mw.Handler, nil
}
