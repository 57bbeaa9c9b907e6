package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/nexuspay-client/internal/gateway"
	"github.com/mmeshcher/nexuspay-client/internal/session"
	"github.com/mmeshcher/nexuspay-client/internal/wizard"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveResponse(http.MethodPost, "")
	m.ObserveResponse(http.MethodPost, gateway.KindUnauthenticated)
	m.ObserveResponse(http.MethodPost, gateway.KindUnauthenticated)
	m.WarningShown()
	m.TimedOut()
	m.StepCompleted(wizard.ModeIncremental, wizard.StepPaymentDetails)
	m.StepFailed(wizard.ModeIncremental, wizard.StepBeneficiary, "")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "unauthenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warnings))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.timeouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wizardSteps.WithLabelValues("incremental", "payment_details", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wizardSteps.WithLabelValues("incremental", "beneficiary", "network")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.TimedOut()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nexuspay_expiry_timeouts_total 1")
}

type chanSubscriber struct {
	ch chan session.Event
}

func (s chanSubscriber) Subscribe() (<-chan session.Event, func()) {
	return s.ch, func() {}
}

func TestWatchSessions(t *testing.T) {
	m := New()
	sub := chanSubscriber{ch: make(chan session.Event, 2)}
	sub.ch <- session.Event{Kind: session.EventLoginSuccess}
	sub.ch <- session.Event{Kind: session.EventLogout, Reason: session.ReasonTimeout}
	close(sub.ch)

	require.NoError(t, m.WatchSessions(context.Background(), sub))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionEvents.WithLabelValues("login_success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionEvents.WithLabelValues("logout", "timeout")))
}

func TestWatchSessions_StopsOnCancel(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, m.WatchSessions(ctx, chanSubscriber{ch: make(chan session.Event)}))
}
