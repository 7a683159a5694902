package remediation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/model"
)

func testEvent(source, kind string) model.Event {
	return model.Event{EventID: "evt-1", Source: source, Kind: kind, Account: "acct", Region: "us-east-1"}
}

func testTriage(score float64) *model.Triage {
	return &model.Triage{PriorityScore: score}
}

func TestShouldFireRequiresFullPolicyAndThreshold(t *testing.T) {
	policy := &config.Policy{RemediateThreshold: 90, ActionPolicy: config.ActionPolicyFull}
	assert.True(t, ShouldFire(testTriage(91), policy))
	assert.False(t, ShouldFire(testTriage(90), policy))

	notifyOnly := &config.Policy{RemediateThreshold: 90, ActionPolicy: config.ActionPolicyNotifyOnly}
	assert.False(t, ShouldFire(testTriage(95), notifyOnly))
}

func TestShouldFireFalseWithNilInputs(t *testing.T) {
	assert.False(t, ShouldFire(nil, &config.Policy{}))
	assert.False(t, ShouldFire(testTriage(95), nil))
}

func TestActionForMatchesKnownRules(t *testing.T) {
	assert.Equal(t, model.ActionDisableCredential, ActionFor("detector-a", "UnauthorizedAccess:IAMUser/X"))
	assert.Equal(t, model.ActionRevokeNetworkIngress, ActionFor("detector-a", "Recon:EC2/PortProbe"))
	assert.Equal(t, model.ActionQuarantineInstance, ActionFor("detector-b", "Trojan:EC2/Backdoor"))
	assert.Equal(t, model.ActionRotateSecret, ActionFor("detector-c", "Finding:AccessKeyExposed"))
	assert.Equal(t, model.ActionBlockAddress, ActionFor("detector-b", "MaliciousIPCaller"))
}

func TestActionForDefaultsToNone(t *testing.T) {
	assert.Equal(t, model.ActionNone, ActionFor("detector-a", "Informational:LoginSuccess"))
}

func TestExecuteSkipsEffectorWhenActionIsNone(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	result := c.Execute(context.Background(), testEvent("detector-a", "Informational:LoginSuccess"))

	require.NotNil(t, result)
	assert.False(t, result.Attempted)
	assert.Equal(t, model.RemediationSkipped, result.Outcome)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestExecuteSucceedsOnFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "evt-1:DISABLE_CREDENTIAL", r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	result := c.Execute(context.Background(), testEvent("detector-a", "UnauthorizedAccess:IAMUser"))

	require.NotNil(t, result)
	assert.True(t, result.Attempted)
	assert.Equal(t, model.RemediationSucceeded, result.Outcome)
	assert.Equal(t, "DISABLE_CREDENTIAL", result.ActionKind)
}

func TestExecuteRecoversAfterOneRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	result := c.Execute(context.Background(), testEvent("detector-a", "UnauthorizedAccess:IAMUser"))

	require.NotNil(t, result)
	assert.Equal(t, model.RemediationSucceeded, result.Outcome)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecuteFailsAfterExhaustingSingleRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	result := c.Execute(context.Background(), testEvent("detector-a", "UnauthorizedAccess:IAMUser"))

	require.NotNil(t, result)
	assert.Equal(t, model.RemediationFailed, result.Outcome)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "must attempt exactly twice: one call, one retry")
}
