package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ChallengeIssued("ownership")
	r.ChallengeConsumed("ownership")
	r.ChallengesExpired(2)
	r.BadgeMinted("STANDARD")
	r.OwnershipVerified("student")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `equalpass_challenges_issued_total{kind="ownership"} 1`)
	assert.Contains(t, body, `equalpass_challenges_expired_total 2`)
	assert.Contains(t, body, `equalpass_badge_mints_total{security_level="STANDARD"} 1`)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ChallengeIssued("registration")
		r.ChallengesExpired(3)
		r.BadgeMinted("HIGH")
	})
}
