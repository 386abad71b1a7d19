package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id1 := NewID()
	id2 := NewID()

	require.NoError(t, id1.Validate())
	require.NoError(t, id2.Validate())
	assert.NotEqual(t, id1, id2)
}

func TestParseID(t *testing.T) {
	valid := NewID()

	parsed, err := ParseID(valid.String())
	require.NoError(t, err)
	assert.Equal(t, valid, parsed)

	_, err = ParseID("")
	assert.Error(t, err)

	_, err = ParseID("not-a-uuid")
	assert.Error(t, err)
}

func TestID_JSONRoundTrip(t *testing.T) {
	id := NewID()

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded ID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)

	// Zero ID serializes as null
	var zero ID
	data, err = json.Marshal(zero)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestEngineError_Format(t *testing.T) {
	err := NewError(POOL_SATURATED, "wait queue full")
	assert.Equal(t, "[POOL_SATURATED] wait queue full", err.Error())

	wrapped := WrapError(SOURCE_FETCH_FAILED, "portal fetch failed", fmt.Errorf("timeout"))
	assert.Equal(t, "[SOURCE_FETCH_FAILED] portal fetch failed: timeout", wrapped.Error())
	assert.Equal(t, "timeout", wrapped.Unwrap().Error())
}

func TestEngineError_Is(t *testing.T) {
	err := WrapError(NODE_TIMEOUT, "node exceeded deadline", fmt.Errorf("deadline"))

	assert.True(t, errors.Is(err, NewError(NODE_TIMEOUT, "other message")))
	assert.False(t, errors.Is(err, NewError(NODE_EXECUTION_FAILED, "other code")))
}

func TestEngineError_Retryable(t *testing.T) {
	assert.False(t, NewError(PLANNING_NO_CAPABILITY, "x").Retryable)
	assert.True(t, NewRetryableError(SOURCE_FETCH_FAILED, "x").Retryable)
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	assert.False(t, TaskPending.IsTerminal())
	assert.False(t, TaskRunning.IsTerminal())
	assert.True(t, TaskSucceeded.IsTerminal())
	assert.True(t, TaskFailed.IsTerminal())
	assert.True(t, TaskSkipped.IsTerminal())
}

func TestInvestigationStatus_IsTerminal(t *testing.T) {
	assert.False(t, InvestigationPlanning.IsTerminal())
	assert.False(t, InvestigationExecuting.IsTerminal())
	assert.True(t, InvestigationCompleted.IsTerminal())
	assert.True(t, InvestigationFailed.IsTerminal())
}

func TestDepth_IsValid(t *testing.T) {
	assert.True(t, DepthQuick.IsValid())
	assert.True(t, DepthStandard.IsValid())
	assert.True(t, DepthDeep.IsValid())
	assert.False(t, Depth("exhaustive").IsValid())
}

func TestHealthStatus(t *testing.T) {
	h := Healthy("all good")
	assert.True(t, h.IsHealthy())
	assert.False(t, h.IsDegraded())

	d := Degraded("one source down")
	assert.True(t, d.IsDegraded())

	u := Unhealthy("pool shut down")
	assert.Equal(t, HealthStateUnhealthy, u.State)
	assert.NotZero(t, u.CheckedAt)
}
