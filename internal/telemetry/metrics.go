package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transformstate/internal/logging"
)

const namespace = "transformstate"

var (
	CodecOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "codec_operations_total",
		Help:      "Transform metadata encode/decode calls by codec.",
	}, []string{"codec", "op"})

	CodecErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "codec_errors_total",
		Help:      "Failed transform metadata encode/decode calls by codec.",
	}, []string{"codec", "op"})

	StoreOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_operations_total",
		Help:      "Metadata store calls by backend and operation.",
	}, []string{"backend", "op"})

	StoreConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_conflicts_total",
		Help:      "Writes rejected by the seq_no/primary_term check.",
	}, []string{"backend"})

	ReplicatedUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replicated_updates_total",
		Help:      "Metadata updates applied from the replication feed.",
	})
)

// Expose serves /metrics on port in the background.
func Expose(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			logging.L().Error("metrics listener stopped", "port", port, "err", err)
		}
	}()
}
