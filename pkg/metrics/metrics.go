package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

var (
	LoginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "auth", Name: "login_total", Help: "Password login attempts by outcome."},
		[]string{"outcome"},
	)
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "auth", Name: "refresh_total", Help: "Refresh token rotations by outcome."},
		[]string{"outcome"},
	)
	LogoutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "auth", Name: "logout_total", Help: "Logouts by outcome."},
		[]string{"outcome"},
	)
	OAuthLoginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "auth", Name: "oauth_login_total", Help: "OAuth login completions by provider and outcome."},
		[]string{"provider", "outcome"},
	)
	BlacklistHits = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "auth", Name: "blacklist_hits_total", Help: "Requests rejected because the access token was revoked."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(LoginTotal)
	reg.MustRegister(RefreshTotal)
	reg.MustRegister(LogoutTotal)
	reg.MustRegister(OAuthLoginTotal)
	reg.MustRegister(BlacklistHits)
}
