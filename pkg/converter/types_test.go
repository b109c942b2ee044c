// --- START OF FINAL REVISED FILE pkg/converter/types_test.go ---
package converter_test

import (
	"testing"

	"github.com/stackvity/corpus-converter/pkg/converter"
	"github.com/stretchr/testify/assert"
)

// TestStatusConstants verifies the string values of Status constants.
func TestStatusConstants(t *testing.T) {
	assert.Equal(t, "planned", string(converter.StatusPlanned))
	assert.Equal(t, "submitted", string(converter.StatusSubmitted))
	assert.Equal(t, "running", string(converter.StatusRunning))
	assert.Equal(t, "success", string(converter.StatusSuccess))
	assert.Equal(t, "failed", string(converter.StatusFailed))
	assert.Equal(t, "cancelled", string(converter.StatusCancelled))
}

func TestStatusIsFinal(t *testing.T) {
	for _, s := range []converter.Status{converter.StatusSuccess, converter.StatusFailed, converter.StatusCancelled} {
		assert.True(t, s.IsFinal(), s)
	}
	for _, s := range []converter.Status{converter.StatusPlanned, converter.StatusSubmitted, converter.StatusRunning} {
		assert.False(t, s.IsFinal(), s)
	}
}

// TestRunModeConstants verifies the string values of RunMode constants.
func TestRunModeConstants(t *testing.T) {
	assert.Equal(t, "incremental", string(converter.RunModeIncremental))
	assert.Equal(t, "reset", string(converter.RunModeReset))
	assert.Equal(t, "noop", string(converter.RunModeNoop))
}

func TestOutputFormatConstants(t *testing.T) {
	assert.Equal(t, "text", string(converter.OutputFormatText))
	assert.Equal(t, "json", string(converter.OutputFormatJSON))
}

func TestSubstrateKindConstants(t *testing.T) {
	assert.Equal(t, "inprocess", string(converter.SubstrateInProcess))
	assert.Equal(t, "exec", string(converter.SubstrateExec))
}

// --- END OF FINAL REVISED FILE pkg/converter/types_test.go ---
