// Package metrics holds the process-wide Prometheus collectors exposed on
// GET /metrics: connection counts, partial/final counters, recognizer call
// latency, hallucination rejections, and speech-segment counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks currently open Server Session connections.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sttstream_connections_active",
		Help: "Currently open recognition-session connections",
	})

	// ConnectionsTotal counts every accepted connection since process start.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sttstream_connections_total",
		Help: "Total accepted connections",
	})

	// PartialsTotal counts emitted partial transcripts, by strategy.
	PartialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sttstream_partials_total",
		Help: "Partial transcripts emitted",
	}, []string{"strategy"})

	// FinalsTotal counts emitted final transcripts, by strategy and
	// acceptance outcome (accepted vs noise).
	FinalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sttstream_finals_total",
		Help: "Final transcripts emitted",
	}, []string{"strategy", "outcome"})

	// BackendLatency is the recognizer call latency, partial and final
	// calls pooled together.
	BackendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sttstream_backend_call_seconds",
		Help:    "Backend Adapter transcribe() call latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
	})

	// BackendErrors counts recognizer call failures by kind.
	BackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sttstream_backend_errors_total",
		Help: "Backend Adapter call failures",
	}, []string{"kind"})

	// HallucinationsFiltered counts transcripts rejected by clean_hallucination.
	HallucinationsFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sttstream_hallucinations_filtered_total",
		Help: "Final transcripts rejected as hallucinations",
	})

	// SpeechSegments counts utterances the Speech Gate finalized and
	// accepted for transmission (client-side).
	SpeechSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sttstream_speech_segments_total",
		Help: "Utterances accepted by the Speech Gate for transmission",
	})

	// RecognizerQueueDepth reports how many transcribe calls are waiting on
	// the server's bounded recognizer worker pool.
	RecognizerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sttstream_recognizer_queue_depth",
		Help: "Pending recognizer calls waiting on the worker pool",
	})
)
