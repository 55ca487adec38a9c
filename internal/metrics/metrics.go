// Package metrics provides Prometheus instrumentation for the event chat
// client and the reference chat server. Client-side series describe the
// polling loop and user actions; server-side series describe the HTTP API
// and chat log traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

var (
	// PollsTotal counts completed poll cycles, labeled by outcome:
	// "novel", "empty" or "error".
	PollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventchat_polls_total",
		Help: "Total number of completed poll cycles",
	}, []string{"outcome"})

	// PollInterval tracks the most recently chosen poll delay in seconds.
	PollInterval = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventchat_poll_interval_seconds",
		Help: "Current adaptive poll interval in seconds",
	})

	// RequestLatency records round-trip latency of chat API requests,
	// labeled by operation.
	RequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventchat_request_latency_seconds",
		Help:    "Chat API request latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"op"})

	// MessagesIngested counts messages offered to the local store, labeled
	// by result: "novel" or "duplicate".
	MessagesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventchat_messages_ingested_total",
		Help: "Messages offered to the local store",
	}, []string{"result"})

	// ActionsTotal counts user actions, labeled by action ("send",
	// "delete") and result ("ok", "rejected", "failed").
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventchat_actions_total",
		Help: "User send and delete actions by result",
	}, []string{"action", "result"})

	// ActiveSessions tracks the number of live chat sessions in the process.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventchat_active_sessions",
		Help: "Current number of active chat sessions",
	})
)

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

var (
	// HTTPRequestsTotal counts API requests by route pattern and status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatserver_http_requests_total",
		Help: "Total number of HTTP requests served",
	}, []string{"route", "code"})

	// HTTPLatency records handler latency in seconds.
	HTTPLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatserver_http_latency_seconds",
		Help:    "HTTP handler latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"route"})

	// ChatMessagesTotal counts chat log mutations, labeled by type:
	// "created", "deleted" or "rate_limited".
	ChatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatserver_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(
		PollsTotal,
		PollInterval,
		RequestLatency,
		MessagesIngested,
		ActionsTotal,
		ActiveSessions,
		HTTPRequestsTotal,
		HTTPLatency,
		ChatMessagesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
