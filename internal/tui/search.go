package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/udpsearch/internal/discovery"
)

// SearchFunc runs one search. The searcher from the discovery package
// satisfies it through SearchWithContext.
type SearchFunc func(ctx context.Context) (*discovery.ServerInfo, error)

// Messages for async operations
type searchStartMsg struct {
	attempt int
}

type searchCompleteMsg struct {
	attempt int
	server  *discovery.ServerInfo
	err     error
}

// searchingKeyMap defines key bindings while a search is running
type searchingKeyMap struct {
	Quit key.Binding
}

func (k searchingKeyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Quit} }
func (k searchingKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Quit}} }

// resultKeyMap defines key bindings once a search has finished
type resultKeyMap struct {
	Rescan key.Binding
	Quit   key.Binding
}

func (k resultKeyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Rescan, k.Quit} }
func (k resultKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Rescan, k.Quit}} }

// SearchModel is the interactive search screen
type SearchModel struct {
	search  SearchFunc
	timeout time.Duration
	params  string // e.g. "255.255.255.255:30201 → :30202"

	Searching bool
	Attempt   int
	Server    *discovery.ServerInfo // result of the latest search
	Found     []*discovery.ServerInfo
	Err       error
	StartTime time.Time

	cancel context.CancelFunc

	Width      int
	Height     int
	Spinner    spinner.Model
	Help       help.Model
	Keys       resultKeyMap
	SearchKeys searchingKeyMap
	quitting   bool
}

// NewSearchModel creates the search screen. timeout is only displayed; the
// search function enforces it.
func NewSearchModel(search SearchFunc, timeout time.Duration, params string) SearchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	quit := key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	)

	return SearchModel{
		search:  search,
		timeout: timeout,
		params:  params,
		Spinner: s,
		Help:    help.New(),
		Keys: resultKeyMap{
			Rescan: key.NewBinding(
				key.WithKeys("r"),
				key.WithHelp("r", "search again"),
			),
			Quit: quit,
		},
		SearchKeys: searchingKeyMap{Quit: quit},
	}
}

// Init starts the first search immediately
func (m SearchModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return searchStartMsg{attempt: 1} },
		m.Spinner.Tick,
	)
}

// Update handles messages and updates the model
func (m SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			if m.cancel != nil {
				m.cancel()
			}
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.Keys.Rescan) && !m.Searching:
			return m, tea.Batch(
				func() tea.Msg { return searchStartMsg{attempt: m.Attempt + 1} },
				m.Spinner.Tick,
			)
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case searchStartMsg:
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.Searching = true
		m.Attempt = msg.attempt
		m.Server = nil
		m.Err = nil
		m.StartTime = time.Now()
		return m, runSearch(ctx, m.search, msg.attempt)

	case searchCompleteMsg:
		// A result from an older attempt is stale
		if msg.attempt != m.Attempt {
			return m, nil
		}
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.Searching = false
		m.Server = msg.server
		m.Err = msg.err
		if msg.server != nil {
			m.Found = append(m.Found, msg.server)
		}

	case spinner.TickMsg:
		if !m.Searching {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// runSearch is a command that performs one search
func runSearch(ctx context.Context, search SearchFunc, attempt int) tea.Cmd {
	return func() tea.Msg {
		server, err := search(ctx)
		return searchCompleteMsg{attempt: attempt, server: server, err: err}
	}
}

// View renders the search screen
func (m SearchModel) View() string {
	if m.quitting {
		return ""
	}

	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var content, helpText string
	if m.Searching {
		content = m.renderSearching(width)
		helpText = m.Help.View(m.SearchKeys)
	} else {
		content = m.renderResult(width)
		helpText = m.Help.View(m.Keys)
	}

	return RenderApplicationContainer(content, helpText, width, m.Height)
}

// renderSearching renders the centered progress display
func (m SearchModel) renderSearching(width int) string {
	elapsed := time.Since(m.StartTime).Round(100 * time.Millisecond)

	lines := []string{
		"",
		TitleStyle.Render(fmt.Sprintf("%s SEARCHING FOR SERVERS", m.Spinner.View())),
		SubtitleStyle.Render("Broadcasting a discovery request on the local network..."),
		"",
	}
	if m.params != "" {
		lines = append(lines, SubtitleStyle.Render(m.params))
	}
	lines = append(lines, SubtitleStyle.Render(fmt.Sprintf("Elapsed: %s / %s", elapsed, m.timeout)), "")

	content := lipgloss.JoinVertical(lipgloss.Center, lines...)
	return lipgloss.Place(width-4, 0, lipgloss.Center, lipgloss.Top, content)
}

// renderResult renders the found server, an empty result, or an error
func (m SearchModel) renderResult(width int) string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case m.Err != nil:
		b.WriteString(RenderError(fmt.Sprintf("Search failed: %v", m.Err)))
		b.WriteString("\n\n")
		b.WriteString(troubleshooting())

	case m.Server == nil:
		b.WriteString("  ")
		b.WriteString(WarningStyle.Render("⚠ No server answered within " + m.timeout.String()))
		b.WriteString("\n\n")
		b.WriteString(troubleshooting())

	default:
		b.WriteString(renderServerCard(m.Server, width))
		b.WriteString("\n")
	}

	if len(m.Found) > 1 {
		b.WriteString("\n")
		b.WriteString(SubtitleStyle.Render(fmt.Sprintf("  Servers found this session: %d", len(m.Found))))
		b.WriteString("\n")
	}

	return b.String()
}

func troubleshooting() string {
	return "  Troubleshooting:\n" +
		"    • Check that a server is running on the same network segment\n" +
		"    • Make sure UDP broadcast is not blocked by a firewall\n" +
		"    • Try a longer --timeout or a directed --broadcast address\n" +
		"    • Press 'r' to search again\n"
}

// renderServerCard renders one server in a bordered card
func renderServerCard(server *discovery.ServerInfo, width int) string {
	var content strings.Builder
	content.WriteString(CardTitleStyle.Render("✓ " + server.String()))
	content.WriteString("\n\n")
	content.WriteString(fmt.Sprintf("  Serial:   %s\n", server.SerialNumber))
	content.WriteString(fmt.Sprintf("  Address:  %s\n", server.HostPort()))
	content.WriteString(fmt.Sprintf("  Source:   %s\n", server.Source))
	content.WriteString(fmt.Sprintf("  Seen at:  %s", server.DiscoveredAt.Format("15:04:05")))

	return CardStyle.Width(cardWidth(width)).Render(content.String())
}

// FoundServers returns every server found across all attempts
func (m SearchModel) FoundServers() []*discovery.ServerInfo {
	return m.Found
}
