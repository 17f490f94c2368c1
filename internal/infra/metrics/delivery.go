package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(deliveriesTotal, intakeRejectedTotal, intakeAcceptedTotal, sweeperRedispatchedTotal) }

var (
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Outbound chat deliveries by channel, kind (post/retract) and success.",
		},
		[]string{"channel", "kind", "success"},
	)

	intakeAcceptedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_accepted_total",
			Help: "Questions accepted per channel.",
		},
		[]string{"channel"},
	)

	intakeRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_rejected_total",
			Help: "Questions rejected at intake, by reason.",
		},
		[]string{"reason"}, // 'rate_limited', 'empty', 'invalid_signature', 'error'
	)

	sweeperRedispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweeper_redispatched_total",
			Help: "Unfinished jobs handed back to the worker pool by the sweeper.",
		},
	)
)

func IncDelivery(channel, kind string, success bool) {
	deliveriesTotal.WithLabelValues(norm(channel), norm(kind), strconv.FormatBool(success)).Inc()
}

func IncIntakeAccepted(channel string) { intakeAcceptedTotal.WithLabelValues(norm(channel)).Inc() }

func IncIntakeRejected(reason string) { intakeRejectedTotal.WithLabelValues(norm(reason)).Inc() }

func AddSweeperRedispatched(n int) { sweeperRedispatchedTotal.Add(float64(n)) }
