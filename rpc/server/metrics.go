package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/tpcKV/lib/cache"
	"github.com/lni/dragonboat/v4/logger"
)

// startMetricsServer serves the prometheus metrics of the process at GET /metrics
func startMetricsServer(endpoint string) (*http.Server, string, error) {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics server failed: %v", err)
		}
	}()

	Logger.Infof("Serving metrics on http://%s/metrics", listener.Addr().String())
	return srv, listener.Addr().String(), nil
}

// startCacheLog periodically logs the counters of c
func startCacheLog(c *cache.LRU, intervalSecond int) {
	if intervalSecond <= 0 {
		return
	}
	go c.LogStats(time.Duration(intervalSecond)*time.Second, cachePrinter{Logger})
}

// cachePrinter writes the cache statistics to a logger
type cachePrinter struct {
	logger.ILogger
}

func (p cachePrinter) Printf(format string, v ...interface{}) {
	p.Infof("%s", strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}
