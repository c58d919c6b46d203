package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStressReturnsEverySlot(t *testing.T) {
	resetFlags()
	jsonOut = true
	stressWorkers = 4
	stressRounds = 50
	stressCapacity = 6

	out, err := captureOutput(t, func() error { return runStress(context.Background()) })
	require.NoError(t, err)

	var report StressReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Zero(t, report.Leaked)
	assert.Equal(t, int64(4*50), report.Cycles+report.Exhausted)
	assert.Positive(t, report.Cycles)
	assert.Zero(t, report.Allocator.DoubleFrees)
	assert.Zero(t, report.Allocator.DeleteErrors, "every deleted selector had an object")
}

func TestStressRejectsBadFlags(t *testing.T) {
	resetFlags()
	stressWorkers = 0
	stressRounds = 10
	_, err := captureOutput(t, func() error { return runStress(context.Background()) })
	assert.Error(t, err)
}
