package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "equalpass"

// Recorder groups the service counters. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	challengesIssued   *prometheus.CounterVec
	challengesConsumed *prometheus.CounterVec
	challengesExpired  prometheus.Counter
	mints              *prometheus.CounterVec
	ownershipChecks    *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		challengesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_issued_total",
			Help:      "Challenges issued, by kind.",
		}, []string{"kind"}),
		challengesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_consumed_total",
			Help:      "Challenges consumed by a successful validation, by kind.",
		}, []string{"kind"}),
		challengesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_expired_total",
			Help:      "Challenges removed after their expiry window.",
		}),
		mints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badge_mints_total",
			Help:      "Badges minted, by security level.",
		}, []string{"security_level"}),
		ownershipChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ownership_verifications_total",
			Help:      "Ownership verifications, by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(
		r.challengesIssued,
		r.challengesConsumed,
		r.challengesExpired,
		r.mints,
		r.ownershipChecks,
		prometheus.NewGoCollector(),
	)
	return r
}

func (r *Recorder) ChallengeIssued(kind string) {
	if r == nil {
		return
	}
	r.challengesIssued.WithLabelValues(kind).Inc()
}

func (r *Recorder) ChallengeConsumed(kind string) {
	if r == nil {
		return
	}
	r.challengesConsumed.WithLabelValues(kind).Inc()
}

func (r *Recorder) ChallengesExpired(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.challengesExpired.Add(float64(n))
}

func (r *Recorder) BadgeMinted(securityLevel string) {
	if r == nil {
		return
	}
	r.mints.WithLabelValues(securityLevel).Inc()
}

func (r *Recorder) OwnershipVerified(outcome string) {
	if r == nil {
		return
	}
	r.ownershipChecks.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
