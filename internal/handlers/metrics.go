package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler serves the default registry for scrapes. Concurrent scrapes
// are capped, and a failing collector is logged while the rest of the
// metrics are still served.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:            scrapeErrorLog{},
			ErrorHandling:       promhttp.ContinueOnError,
			MaxRequestsInFlight: 4,
			Timeout:             10 * time.Second,
		}),
	)
}

// scrapeErrorLog routes promhttp errors into the api component logger.
type scrapeErrorLog struct{}

func (scrapeErrorLog) Println(v ...interface{}) {
	apiLog.Error("metrics scrape: %s", fmt.Sprint(v...))
}
