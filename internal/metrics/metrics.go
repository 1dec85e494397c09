package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Monitor metrics
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_bridge_polls_total",
			Help: "Total monitor polls",
		},
		[]string{"platform"},
	)

	PageFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_bridge_page_fetch_errors_total",
			Help: "Search page fetches that failed after retries",
		},
		[]string{"platform"},
	)

	CandidatesSeen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_bridge_candidates_total",
			Help: "Raw candidates returned by the platform",
		},
		[]string{"platform"},
	)

	FilterDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_bridge_filter_dropped_total",
			Help: "Candidates dropped by the mention filter",
		},
		[]string{"rule"},
	)

	ItemsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_bridge_items_enqueued_total",
			Help: "Work items inserted into the queue",
		},
		[]string{"platform"},
	)

	// Worker metrics
	ItemsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reply_bridge_items_claimed_total",
			Help: "Work items claimed by workers",
		},
	)

	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_bridge_replies_total",
			Help: "Reply attempts by outcome",
		},
		[]string{"outcome"}, // posted, dry_run, llm_error, post_error
	)

	ImagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_bridge_images_total",
			Help: "Image generation attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReaperRequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_bridge_reaper_items_total",
			Help: "Expired claims handled by the lease reaper",
		},
		[]string{"action"}, // requeued, abandoned
	)

	// External call latency
	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reply_bridge_call_duration_seconds",
			Help:    "Duration of wrapped external calls",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"call", "status"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reply_bridge_http_requests_total",
			Help: "Total status API requests",
		},
		[]string{"method", "path", "status"},
	)
)
