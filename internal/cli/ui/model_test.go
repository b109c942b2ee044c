package ui

import (
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stackvity/corpus-converter/internal/cli/hooks" // Import hooks for message types
	"github.com/stackvity/corpus-converter/pkg/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create a model with specific dimensions for testing Update.
func newTestModel(width, height int) *Model {
	m := NewModel("v0.1.0")
	_, _ = m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	return &m
}

func testChunk(ordinal int) converter.Chunk {
	return converter.Chunk{
		RunOrdinal:   3,
		Ordinal:      ordinal,
		FileName:     "pubmed-000" + string(rune('0'+ordinal)) + ".jsonl",
		MinID:        uint64(ordinal) * 100,
		LimitID:      uint64(ordinal)*100 + 100,
		ArtifactName: converter.ArtifactName(3, ordinal),
	}
}

func TestModel_Init(t *testing.T) {
	m := newTestModel(80, 25)
	cmd := m.Init()
	require.NotNil(t, cmd)
	_, ok := cmd().(spinner.TickMsg)
	assert.True(t, ok, "Init should return a command that produces spinner.TickMsg")
}

func TestModel_Update_WindowSize(t *testing.T) {
	m := NewModel("")
	assert.Equal(t, phaseInitializing, m.View())
	_, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 3})
	assert.True(t, m.initialized)
	assert.Equal(t, 100, m.width)
	assert.Equal(t, "dev", m.version)
}

func TestModel_Update_Quit(t *testing.T) {
	testCases := []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	}

	for _, key := range testCases {
		t.Run(key.String(), func(t *testing.T) {
			m := newTestModel(80, 25)
			newModel, cmd := m.Update(key)
			require.NotNil(t, cmd)
			updated, ok := newModel.(*Model)
			require.True(t, ok)
			assert.True(t, updated.quitting)
			assert.IsType(t, tea.QuitMsg{}, cmd())
			assert.Equal(t, "Exiting...\n", updated.View())

			// Further input is ignored once quitting.
			_, cmd = updated.Update(tea.KeyMsg{Type: tea.KeyDown})
			assert.Nil(t, cmd)
		})
	}
}

func TestModel_Update_ChunkPlanned(t *testing.T) {
	m := newTestModel(80, 25)
	_, cmd := m.Update(hooks.ChunkPlannedMsg{Chunk: testChunk(0)})
	require.NotNil(t, cmd, "list refresh scheduled")
	_, _ = m.Update(hooks.ChunkPlannedMsg{Chunk: testChunk(1)})
	_, _ = m.Update(hooks.ChunkPlannedMsg{Chunk: testChunk(1)}) // duplicate

	assert.Equal(t, 2, m.summary.PlannedCount)
	require.Len(t, m.chunkItems, 2)
	assert.Equal(t, converter.StatusPlanned, m.chunkItems[1].status)
	assert.Equal(t, phasePlanning, m.phaseMessage)
	assert.True(t, m.updatePending)
}

func TestModel_Update_ChunkStatus(t *testing.T) {
	m := newTestModel(80, 25)
	_, _ = m.Update(hooks.ChunkPlannedMsg{Chunk: testChunk(0)})
	_, _ = m.Update(hooks.ChunkPlannedMsg{Chunk: testChunk(1)})

	_, _ = m.Update(hooks.ChunkStatusUpdateMsg{Chunk: testChunk(0), Status: converter.StatusRunning})
	assert.Equal(t, phaseConverting, m.phaseMessage)

	_, _ = m.Update(hooks.ChunkStatusUpdateMsg{Chunk: testChunk(0), Status: converter.StatusSuccess, Message: "5 records", Duration: 1500 * time.Millisecond})
	_, _ = m.Update(hooks.ChunkStatusUpdateMsg{Chunk: testChunk(0), Status: converter.StatusSuccess}) // repeated final state
	_, _ = m.Update(hooks.ChunkStatusUpdateMsg{Chunk: testChunk(1), Status: converter.StatusFailed, Message: "range overflow"})
	_, _ = m.Update(hooks.ChunkStatusUpdateMsg{Chunk: testChunk(2), Status: converter.StatusCancelled})

	assert.Equal(t, 1, m.summary.SucceededCount)
	assert.Equal(t, 1, m.summary.FailedCount)
	assert.Equal(t, 1, m.summary.CancelledCount)
	assert.Equal(t, 3, m.summary.PlannedCount, "status for an unseen chunk adds it")
	assert.Equal(t, 1500*time.Millisecond, m.chunkItems[0].duration, "duration kept when a later update has none")
	assert.Equal(t, "range overflow", m.chunkItems[1].message)
}

func TestModel_Update_RunComplete(t *testing.T) {
	t.Run("Committed", func(t *testing.T) {
		m := newTestModel(80, 25)
		_, _ = m.Update(hooks.RunCompleteMsg{Report: converter.Report{Summary: converter.ReportSummary{
			Committed: true, RunOrdinal: 4, RecordCount: 42, Mode: converter.RunModeIncremental,
		}}})
		assert.Equal(t, "Complete: run 4 committed", m.phaseMessage)
		assert.Equal(t, int64(42), m.summary.RecordCount)
		assert.Empty(t, m.fatalError)
		assert.True(t, m.isComplete())

		// A late running update does not reopen the run.
		_, _ = m.Update(hooks.ChunkStatusUpdateMsg{Chunk: testChunk(0), Status: converter.StatusRunning})
		assert.True(t, m.isComplete())
	})

	t.Run("Noop", func(t *testing.T) {
		m := newTestModel(80, 25)
		_, _ = m.Update(hooks.RunCompleteMsg{Report: converter.Report{Summary: converter.ReportSummary{Mode: converter.RunModeNoop}}})
		assert.Equal(t, "Complete: nothing new", m.phaseMessage)
	})

	t.Run("Fatal", func(t *testing.T) {
		m := newTestModel(80, 25)
		_, _ = m.Update(hooks.RunCompleteMsg{Report: converter.Report{
			Summary: converter.ReportSummary{FatalErrorOccurred: true},
			Errors: []converter.ErrorInfo{
				{Chunk: "c1", Error: "not fatal"},
				{Error: "run failed: chunk 1", IsFatal: true},
			},
		}})
		assert.Equal(t, "Fatal Error: run failed: chunk 1", m.fatalError)
	})
}

func TestModel_Update_ListRefresh(t *testing.T) {
	m := newTestModel(80, 25)
	_, first := m.Update(hooks.ChunkPlannedMsg{Chunk: testChunk(0)})
	require.NotNil(t, first)
	_, second := m.Update(hooks.ChunkPlannedMsg{Chunk: testChunk(1)})
	assert.Nil(t, second, "refresh already pending")

	_, _ = m.Update(UpdateListMsg{})
	assert.False(t, m.updatePending)
	assert.Len(t, m.list.Items(), 2)
}
