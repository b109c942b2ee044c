package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stackvity/corpus-converter/internal/cli/hooks" // Import hooks for message types
	"github.com/stackvity/corpus-converter/pkg/converter"
)

// --- Constants ---

const listHeightMargin = 4 // Header, footer and padding

const (
	phaseInitializing = "Initializing..."
	phasePlanning     = "Planning..."
	phaseConverting   = "Converting..."
	phaseComplete     = "Complete"
)

// --- Model Struct ---

// Model represents the state of the TUI application.
// It holds UI components (list, spinner), layout dimensions, run status,
// aggregated summary statistics, and the chunks of the current run.
type Model struct {
	// list displays the scrollable list of chunks.
	list    list.Model
	spinner spinner.Model
	width   int
	height  int
	// initialized tracks if the model has received initial dimensions.
	initialized bool
	version     string
	// chunkItems holds one entry per planned chunk, in plan order.
	chunkItems []listItem
	// itemMap maps chunk ordinals to their index in chunkItems.
	itemMap      map[int]int
	summary      Summary
	phaseMessage string
	// fatalError stores a descriptive message if the run ended with an error.
	fatalError string
	quitting   bool
	// updatePending is set while a debounced list refresh is scheduled.
	updatePending bool
}

// listItem represents a single chunk in the TUI list.
type listItem struct {
	chunk    converter.Chunk
	status   converter.Status
	message  string
	duration time.Duration
}

// Summary holds the aggregated statistics displayed in the TUI footer.
type Summary struct {
	PlannedCount   int
	SucceededCount int
	FailedCount    int
	CancelledCount int
	RecordCount    int64
	StartTime      time.Time
}

// --- Bubble Tea Interface Implementations ---

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages (user input, hook events) and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	// --- Internal Bubble Tea Messages ---
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listHeight := m.height - listHeightMargin
		if listHeight < 1 {
			listHeight = 1
		}
		m.list.SetSize(m.width, listHeight)
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	// --- Custom Messages from Library Hooks ---
	case hooks.ChunkPlannedMsg:
		if _, exists := m.itemMap[msg.Chunk.Ordinal]; !exists {
			m.chunkItems = append(m.chunkItems, listItem{chunk: msg.Chunk, status: converter.StatusPlanned})
			m.itemMap[msg.Chunk.Ordinal] = len(m.chunkItems) - 1
			m.summary.PlannedCount++
			cmds = append(cmds, m.debounceListUpdate())
		}
		if m.phaseMessage == phaseInitializing {
			m.phaseMessage = phasePlanning
		}

	case hooks.ChunkStatusUpdateMsg:
		idx, ok := m.itemMap[msg.Chunk.Ordinal]
		if !ok {
			// Status for a chunk whose planned message was not seen.
			m.chunkItems = append(m.chunkItems, listItem{chunk: msg.Chunk, status: converter.StatusPlanned})
			idx = len(m.chunkItems) - 1
			m.itemMap[msg.Chunk.Ordinal] = idx
			m.summary.PlannedCount++
		}
		item := &m.chunkItems[idx]
		if msg.Status.IsFinal() && !item.status.IsFinal() {
			m.countFinal(msg.Status)
		}
		item.status = msg.Status
		item.message = msg.Message
		if msg.Duration > 0 {
			item.duration = msg.Duration
		}
		cmds = append(cmds, m.debounceListUpdate())
		if msg.Status == converter.StatusRunning && !m.isComplete() {
			m.phaseMessage = phaseConverting
		}

	case hooks.RunCompleteMsg:
		m.phaseMessage = phaseComplete
		s := msg.Report.Summary
		m.summary.RecordCount = s.RecordCount
		if s.FatalErrorOccurred {
			m.fatalError = "Run failed; corpus and ledger unchanged."
			for _, e := range msg.Report.Errors {
				if e.IsFatal {
					m.fatalError = fmt.Sprintf("Fatal Error: %s", e.Error)
					break
				}
			}
		}
		if s.Committed {
			m.phaseMessage = fmt.Sprintf("%s: run %d committed", phaseComplete, s.RunOrdinal)
		} else if s.Mode == converter.RunModeNoop {
			m.phaseMessage = phaseComplete + ": nothing new"
		}
		// The user quits with q once the summary has been read.

	case UpdateListMsg:
		m.updatePending = false
		items := make([]list.Item, len(m.chunkItems))
		for i, item := range m.chunkItems {
			items[i] = item
		}
		cmds = append(cmds, m.list.SetItems(items))
	}

	return m, tea.Batch(cmds...)
}

// View renders the current state of the TUI model to a string.
func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return phaseInitializing
	}

	// --- Header ---
	headerLeft := fmt.Sprintf("Corpus Converter %s", m.version)
	headerRight := m.phaseMessage
	if m.phaseMessage != phaseInitializing && !m.isComplete() {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	headerCenter := ""
	// Width includes the style's padding, so the spacer fills only the inner width.
	if w := m.width - HeaderStyle.GetHorizontalFrameSize() - lipgloss.Width(headerLeft) - lipgloss.Width(headerRight); w > 0 {
		headerCenter = lipgloss.PlaceHorizontal(w, lipgloss.Center, " ")
	}
	header := HeaderStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Top, headerLeft, headerCenter, headerRight))

	// --- Footer ---
	elapsed := time.Since(m.summary.StartTime).Round(time.Millisecond)
	footerLeft := fmt.Sprintf(
		"Chunks: %d | Done: %d | Failed: %d | Cancelled: %d | Records: %d | Elapsed: %s",
		m.summary.PlannedCount,
		m.summary.SucceededCount,
		m.summary.FailedCount,
		m.summary.CancelledCount,
		m.summary.RecordCount,
		elapsed,
	)
	footerRight := "q: quit"
	footerCenter := ""
	if w := m.width - FooterStyle.GetHorizontalFrameSize() - lipgloss.Width(footerLeft) - lipgloss.Width(footerRight); w > 0 {
		footerCenter = lipgloss.PlaceHorizontal(w, lipgloss.Center, " ")
	}
	footer := FooterStyle.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Bottom, footerLeft, footerCenter, footerRight))

	errorView := ""
	if m.fatalError != "" {
		errorView = StatusStyleFailed.Render(m.fatalError) + "\n"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.list.View(),
		errorView,
		footer,
	)
}

// --- Helper Methods ---

// NewModel creates the initial model for the TUI.
func NewModel(version string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusRunning)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings() // Use our own quit logic

	if version == "" {
		version = "dev"
	}
	return Model{
		list:         l,
		spinner:      s,
		version:      version,
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: phaseInitializing,
		chunkItems:   make([]listItem, 0, 64),
		itemMap:      make(map[int]int),
	}
}

func (m *Model) isComplete() bool {
	return strings.HasPrefix(m.phaseMessage, phaseComplete)
}

// countFinal updates summary counts for a chunk entering a final status.
func (m *Model) countFinal(status converter.Status) {
	switch status {
	case converter.StatusSuccess:
		m.summary.SucceededCount++
	case converter.StatusFailed:
		m.summary.FailedCount++
	case converter.StatusCancelled:
		m.summary.CancelledCount++
	}
}

// --- List Item Interface ---

// FilterValue implements the list.Item interface.
func (i listItem) FilterValue() string { return i.chunk.FileName }

// Title implements the list.Item interface.
func (i listItem) Title() string {
	return fmt.Sprintf("%s -> %s", filepath.Base(i.chunk.FileName), i.chunk.ArtifactName)
}

// Description implements the list.Item interface.
func (i listItem) Description() string {
	var statusStyle lipgloss.Style
	statusIcon := " "
	switch i.status {
	case converter.StatusSuccess:
		statusStyle = StatusStyleSuccess
		statusIcon = "✓"
	case converter.StatusFailed:
		statusStyle = StatusStyleFailed
		statusIcon = "✗"
	case converter.StatusCancelled:
		statusStyle = StatusStyleCancelled
		statusIcon = "-"
	case converter.StatusRunning, converter.StatusSubmitted:
		statusStyle = StatusStyleRunning
		statusIcon = "…"
	default:
		statusStyle = StatusStylePlanned
	}

	details := i.chunk.Range().String()
	switch i.status {
	case converter.StatusFailed, converter.StatusCancelled:
		if i.message != "" {
			details = i.message
		}
	case converter.StatusSuccess:
		if i.message != "" {
			details += " " + i.message
		}
		if i.duration > 0 {
			details += " " + formatDuration(i.duration)
		}
	}
	return fmt.Sprintf("%s %s", statusStyle.Render(fmt.Sprintf("[%s]", statusIcon)), details)
}

// formatDuration formats duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		if d == 0 {
			return ""
		}
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// --- Update Debouncing ---

// UpdateListMsg signals that the list component should update its items.
type UpdateListMsg struct{}

const listUpdateDebounceDuration = 50 * time.Millisecond // Update list ~20 times/sec max

// debounceListUpdate schedules one list refresh; further calls before it fires are absorbed.
func (m *Model) debounceListUpdate() tea.Cmd {
	if m.updatePending {
		return nil
	}
	m.updatePending = true
	return tea.Tick(listUpdateDebounceDuration, func(time.Time) tea.Msg { return UpdateListMsg{} })
}

// --- Styles ---

const (
	ColorHeaderFg = lipgloss.Color("252") // Light Gray
	ColorHeaderBg = lipgloss.Color("62")  // Purple

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("56") // Dark Pink/Purple

	ColorNormalFg     = lipgloss.Color("250") // Off-white
	ColorNormalDescFg = lipgloss.Color("244") // Dim gray

	ColorSelectedFg     = lipgloss.Color("255") // White
	ColorSelectedBg     = lipgloss.Color("56")  // Dark Pink/Purple
	ColorSelectedDescFg = lipgloss.Color("248") // Lighter Gray

	ColorStatusSuccess   = lipgloss.Color("40")  // Green
	ColorStatusFailed    = lipgloss.Color("196") // Red
	ColorStatusCancelled = lipgloss.Color("214") // Orange/Yellow
	ColorStatusPlanned   = lipgloss.Color("244") // Dim gray
	ColorStatusRunning   = lipgloss.Color("205") // Pink (matches spinner)
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	StatusStyleSuccess   = lipgloss.NewStyle().Foreground(ColorStatusSuccess)
	StatusStyleFailed    = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleCancelled = lipgloss.NewStyle().Foreground(ColorStatusCancelled)
	StatusStylePlanned   = lipgloss.NewStyle().Foreground(ColorStatusPlanned)
	StatusStyleRunning   = lipgloss.NewStyle().Foreground(ColorStatusRunning)
)
