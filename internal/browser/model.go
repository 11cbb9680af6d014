// Package browser is the terminal front end for the terminology service: a
// debounced live search over NAMASTE terms, a selectable list of result cards
// and a panel showing the FHIR resource generated for the selected term.
package browser

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/ehr/namaste/internal/client"
)

// Messages shown to the user.
const (
	MsgSearchFailed      = "Could not fetch results. Is the backend server running?"
	MsgNoResults         = "No results found."
	MsgSelectFirst       = "Please select a term first."
	MsgGenerating        = "Generating..."
	MsgGenerateFailed    = "Error generating FHIR resource. See log for details."
	MsgSearchHint        = "Type at least %d characters to search NAMAST-E terms."
	MsgOutputPlaceholder = "Select a term and press ctrl+g to generate a FHIR resource."
)

// API is the subset of the terminology client the browser needs.
type API interface {
	Search(ctx context.Context, query string) ([]client.Term, error)
	GenerateFHIR(ctx context.Context, term *client.Term) (json.RawMessage, error)
}

var _ API = (*client.Client)(nil)

// Options configures a Model.
type Options struct {
	Debounce  time.Duration
	MinLength int
	Logger    zerolog.Logger
}

type searchState int

const (
	searchIdle searchState = iota
	searchRunning
	searchShown
	searchFailed
)

type debounceMsg struct{ tag int }

type searchResultMsg struct {
	seq   int
	query string
	terms []client.Term
	err   error
}

type generateResultMsg struct {
	seq  int
	term string
	body json.RawMessage
	err  error
}

// Model is the bubbletea model for the browser. All state lives here and is
// only touched from Update; network calls run as commands and report back
// through messages tagged with the sequence number they were issued under.
type Model struct {
	api    API
	logger zerolog.Logger
	styles Styles
	keys   keyMap

	debounce  time.Duration
	minLength int

	ctx    context.Context
	cancel context.CancelFunc

	input   textinput.Model
	output  viewport.Model
	spinner spinner.Model
	help    help.Model

	width  int
	height int

	// debounceTag identifies the newest pending quiet-period tick.
	debounceTag int
	// searchSeq identifies the newest issued search; older responses are dropped.
	searchSeq    int
	cancelSearch context.CancelFunc
	search       searchState

	results []client.Term
	cursor  int
	// selected outlives result lists; selectedIdx is its card in the current
	// list, or -1 when none of the cards is it.
	selected    *client.Term
	selectedIdx int

	generateSeq int
	generating  bool
	outputText  string
	outputErr   bool

	notice string
}

// New creates a browser model backed by api.
func New(api API, opts Options) Model {
	if opts.MinLength < 1 {
		opts.MinLength = 2
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}

	ti := textinput.New()
	ti.Placeholder = "Search NAMAST-E terms (e.g. jvara)"
	ti.Prompt = "Search: "
	ti.CharLimit = 200
	ti.Focus()

	vp := viewport.New(80, 12)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		api:         api,
		logger:      opts.Logger,
		styles:      DefaultStyles(),
		keys:        defaultKeyMap(),
		debounce:    opts.Debounce,
		minLength:   opts.MinLength,
		ctx:         ctx,
		cancel:      cancel,
		input:       ti,
		output:      vp,
		spinner:     sp,
		help:        help.New(),
		selectedIdx: -1,
	}
	m.setOutput(MsgOutputPlaceholder, false)
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case debounceMsg:
		return m.handleDebounce(msg)

	case searchResultMsg:
		return m.handleSearchResult(msg), nil

	case generateResultMsg:
		return m.handleGenerateResult(msg), nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) busy() bool {
	return m.search == searchRunning || m.generating
}

func (m *Model) setSize(width, height int) {
	m.width, m.height = width, height
	m.input.Width = max(10, width-len(m.input.Prompt)-2)
	m.help.Width = width
	m.output.Width = max(20, width-4)
	m.output.Height = max(5, height/3)
	m.output.SetContent(m.renderOutputText())
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.results)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Select):
		m.selectAt(m.cursor)
		return m, nil

	case key.Matches(msg, m.keys.Generate):
		return m.startGenerate()

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.output, cmd = m.output.Update(msg)
		return m, cmd
	}

	prev := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == prev {
		return m, cmd
	}
	return m, tea.Batch(cmd, m.queryChanged())
}

// queryChanged restarts the quiet period. Queries below the minimum length
// clear the results and the selection immediately.
func (m *Model) queryChanged() tea.Cmd {
	m.debounceTag++

	if utf8.RuneCountInString(m.input.Value()) < m.minLength {
		m.abandonSearch()
		m.search = searchIdle
		m.results = nil
		m.cursor = 0
		m.selected = nil
		m.selectedIdx = -1
		return nil
	}

	tag := m.debounceTag
	return tea.Tick(m.debounce, func(time.Time) tea.Msg {
		return debounceMsg{tag: tag}
	})
}

// abandonSearch cancels the in-flight search, if any, and makes sure its
// response is ignored.
func (m *Model) abandonSearch() {
	if m.cancelSearch != nil {
		m.cancelSearch()
		m.cancelSearch = nil
	}
	m.searchSeq++
}

func (m Model) handleDebounce(msg debounceMsg) (tea.Model, tea.Cmd) {
	if msg.tag != m.debounceTag {
		return m, nil
	}
	query := m.input.Value()
	if utf8.RuneCountInString(query) < m.minLength {
		return m, nil
	}

	m.abandonSearch()
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelSearch = cancel
	m.search = searchRunning

	seq := m.searchSeq
	api := m.api
	m.logger.Debug().Int("seq", seq).Str("query", query).Msg("search issued")

	return m, tea.Batch(
		func() tea.Msg {
			terms, err := api.Search(ctx, query)
			return searchResultMsg{seq: seq, query: query, terms: terms, err: err}
		},
		m.spinner.Tick,
	)
}

func (m Model) handleSearchResult(msg searchResultMsg) Model {
	if msg.seq != m.searchSeq {
		m.logger.Debug().Int("seq", msg.seq).Int("latest", m.searchSeq).Str("query", msg.query).Msg("stale search response dropped")
		return m
	}
	if m.cancelSearch != nil {
		m.cancelSearch()
		m.cancelSearch = nil
	}

	if msg.err != nil {
		m.logger.Error().Err(msg.err).Str("query", msg.query).Msg("failed to fetch search results")
		m.search = searchFailed
		m.results = nil
		m.cursor = 0
		m.selectedIdx = -1
		return m
	}

	m.search = searchShown
	m.results = msg.terms
	m.cursor = 0
	m.selectedIdx = m.matchSelected()
	if m.selectedIdx >= 0 {
		m.cursor = m.selectedIdx
	}
	return m
}

func (m *Model) selectAt(i int) {
	if i < 0 || i >= len(m.results) {
		return
	}
	t := m.results[i]
	m.selected = &t
	m.selectedIdx = i
	m.logger.Debug().Str("namaste_term", t.NamasteTerm).Msg("term selected")
}

// matchSelected finds the first card holding the selected term, or -1.
// Names are not unique, so cards are matched on the whole term.
func (m Model) matchSelected() int {
	if m.selected == nil {
		return -1
	}
	for i := range m.results {
		if m.results[i].Same(*m.selected) {
			return i
		}
	}
	return -1
}

// CanGenerate reports whether a term is selected.
func (m Model) CanGenerate() bool {
	return m.selected != nil
}

func (m Model) startGenerate() (tea.Model, tea.Cmd) {
	if m.selected == nil {
		m.notice = MsgSelectFirst
		return m, nil
	}
	if m.generating {
		return m, nil
	}

	m.generating = true
	m.generateSeq++
	m.setOutput(MsgGenerating, false)

	seq := m.generateSeq
	term := *m.selected
	api := m.api
	ctx := m.ctx
	m.logger.Info().Str("namaste_term", term.NamasteTerm).Msg("generating FHIR resource")

	return m, tea.Batch(
		func() tea.Msg {
			body, err := api.GenerateFHIR(ctx, &term)
			return generateResultMsg{seq: seq, term: term.NamasteTerm, body: body, err: err}
		},
		m.spinner.Tick,
	)
}

func (m Model) handleGenerateResult(msg generateResultMsg) Model {
	if msg.seq != m.generateSeq {
		return m
	}
	m.generating = false

	if msg.err != nil {
		m.logger.Error().Err(msg.err).Str("namaste_term", msg.term).Msg("failed to generate FHIR resource")
		m.setOutput(MsgGenerateFailed, true)
		return m
	}

	pretty, err := client.PrettyJSON(msg.body)
	if err != nil {
		m.logger.Error().Err(err).Str("namaste_term", msg.term).Msg("FHIR response is not valid JSON")
		m.setOutput(MsgGenerateFailed, true)
		return m
	}
	m.setOutput(pretty, false)
	return m
}

func (m *Model) setOutput(text string, isErr bool) {
	m.outputText = text
	m.outputErr = isErr
	m.output.SetContent(m.renderOutputText())
	m.output.GotoTop()
}

// Results returns the current result cards.
func (m Model) Results() []client.Term { return m.results }

// Selected returns the selected term, if any.
func (m Model) Selected() (client.Term, bool) {
	if m.selected == nil {
		return client.Term{}, false
	}
	return *m.selected, true
}

// Output returns the text of the FHIR output panel.
func (m Model) Output() string { return m.outputText }
