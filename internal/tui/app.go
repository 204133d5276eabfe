// Package tui renders the terminal reading interface. All user state goes
// through the per-domain reconcile accessors, never the stores directly.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kathaverse/katha/internal/adapter"
	"github.com/kathaverse/katha/internal/catalog"
	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/engagement"
	"github.com/kathaverse/katha/internal/reconcile"
	"github.com/kathaverse/katha/internal/search"
)

// view names the visible screen
type view int

const (
	viewBrowse view = iota
	viewReader
	viewPreferences
)

// Services bundles everything the TUI depends on
type Services struct {
	Session     *reconcile.Session
	Catalog     *catalog.Service
	Search      *search.Service
	Favorites   *reconcile.Favorites
	History     *reconcile.History
	Preferences *reconcile.Preferences
	Profile     *reconcile.Profile
	Drafts      *reconcile.Drafts
	Engagement  *engagement.Service
	Opener      *adapter.Opener
	Logger      *slog.Logger
}

// Model is the bubbletea application model
type Model struct {
	svc Services

	view      view
	list      list.Model
	viewport  viewport.Model
	input     textinput.Model
	searching bool

	lang    domain.Language
	mode    domain.Audience
	stories []domain.Story
	current *domain.Story

	width  int
	height int
	status string
	banner string
	prompt prompt
	err    error
}

// prompt identifies which dismissable banner is showing
type prompt int

const (
	promptNone prompt = iota
	promptWelcome
	promptReminder
	promptSync
)

// storyItem adapts a story to the list widget
type storyItem struct {
	story    domain.Story
	favorite bool
}

func (i storyItem) Title() string {
	if i.favorite {
		return favoriteStyle.Render("♥ ") + i.story.Title
	}
	return i.story.Title
}

func (i storyItem) Description() string {
	return fmt.Sprintf("%s · %s · %d min", i.story.Author, i.story.Category, i.story.ReadMinutes)
}

func (i storyItem) FilterValue() string { return i.story.Title }

// Messages

type storiesLoadedMsg struct {
	stories []domain.Story
	err     error
}

type statusMsg string

// NewModel builds the initial model
func NewModel(svc Services) Model {
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}

	prefs := svc.Preferences.Get(context.Background())

	delegate := list.NewDefaultDelegate()
	storyList := list.New(nil, delegate, 0, 0)
	storyList.Title = "Katha"
	storyList.SetShowHelp(false)
	storyList.SetFilteringEnabled(false)

	input := textinput.New()
	input.Placeholder = "search stories"
	input.CharLimit = 64

	m := Model{
		svc:      svc,
		list:     storyList,
		viewport: viewport.New(0, 0),
		input:    input,
		lang:     prefs.Language,
		mode:     prefs.Mode,
	}

	switch {
	case svc.Engagement.FirstRun():
		m.prompt = promptWelcome
		m.banner = "Welcome to Katha! Pick a story to start your reading streak."
	case svc.Engagement.ReminderDue():
		m.prompt = promptReminder
		m.banner = "Your reading streak is waiting: read a story today to keep it. (x to dismiss)"
	case svc.Session != nil && !svc.Session.Authenticated() && svc.Engagement.SyncPromptDue():
		m.prompt = promptSync
		m.banner = "Sign in with `katha -login` to keep favorites across devices. (x to dismiss)"
	}
	return m
}

// Init kicks off the initial catalog load
func (m Model) Init() tea.Cmd {
	return m.loadStories(false)
}

func (m Model) loadStories(refresh bool) tea.Cmd {
	lang, mode := m.lang, m.mode
	return func() tea.Msg {
		ctx := context.Background()
		var stories []domain.Story
		var err error
		if refresh {
			stories, err = m.svc.Catalog.Refresh(ctx, lang, mode)
		} else {
			stories, err = m.svc.Catalog.Stories(ctx, lang, mode)
		}
		return storiesLoadedMsg{stories: stories, err: err}
	}
}

// Update handles events
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 6
		if m.current != nil {
			m.viewport.SetContent(m.renderStory(*m.current))
		}
		return m, nil

	case storiesLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "offline: showing what's cached"
			return m, nil
		}
		m.err = nil
		m.stories = msg.stories
		m.svc.Search.IndexStories(msg.stories)
		m.refreshList(msg.stories)
		m.status = fmt.Sprintf("%d stories · %s/%s", len(msg.stories), m.lang, m.mode)
		return m, nil

	case statusMsg:
		m.status = string(msg)
		if m.view == viewBrowse && !m.searching {
			// Favorite markers may have changed
			m.refreshList(m.stories)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateChildren(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		switch msg.String() {
		case "esc":
			m.searching = false
			m.input.Blur()
			m.refreshList(m.stories)
			return m, nil
		case "enter":
			m.searching = false
			m.input.Blur()
			return m, nil
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			m.applySearch(m.input.Value())
			return m, cmd
		}
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Back):
		if m.view == viewReader && m.current != nil {
			return m.closeReader()
		}
		if m.view != viewBrowse {
			m.view = viewBrowse
		}
		return m, nil

	case key.Matches(msg, keys.Dismiss):
		if m.view == viewBrowse && m.banner != "" {
			switch m.prompt {
			case promptReminder:
				m.svc.Engagement.DismissReminder()
			case promptSync:
				m.svc.Engagement.DismissSyncPrompt()
			}
			m.banner = ""
			m.prompt = promptNone
		}
		return m, nil

	case key.Matches(msg, keys.Preferences):
		if m.view == viewBrowse {
			m.view = viewPreferences
		}
		return m, nil

	case key.Matches(msg, keys.Search):
		if m.view == viewBrowse {
			m.searching = true
			m.input.SetValue("")
			return m, m.input.Focus()
		}
		return m, nil

	case key.Matches(msg, keys.Refresh):
		if m.view == viewBrowse {
			m.status = "refreshing..."
			return m, m.loadStories(true)
		}
		return m, nil

	case key.Matches(msg, keys.Open):
		if m.view == viewBrowse {
			return m.openSelected()
		}
		return m, nil

	case key.Matches(msg, keys.Favorite):
		return m.toggleFavorite()

	case key.Matches(msg, keys.Like) && m.view == viewReader:
		if m.current != nil {
			liked := m.svc.Engagement.ToggleLike(m.current.ID)
			if liked {
				m.status = "liked"
			} else {
				m.status = "unliked"
			}
		}
		return m, nil

	case key.Matches(msg, keys.Share) && m.view == viewReader:
		if m.current != nil {
			return m, m.shareCurrent()
		}
		return m, nil

	case key.Matches(msg, keys.Draft) && m.view == viewReader:
		if m.current != nil {
			return m, m.draftRetelling()
		}
		return m, nil
	}

	if m.view == viewPreferences {
		return m.handlePreferencesKey(msg)
	}
	return m.updateChildren(msg)
}

func (m Model) updateChildren(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case viewReader:
		m.viewport, cmd = m.viewport.Update(msg)
	default:
		m.list, cmd = m.list.Update(msg)
	}
	return m, cmd
}

func (m Model) openSelected() (tea.Model, tea.Cmd) {
	item, ok := m.list.SelectedItem().(storyItem)
	if !ok {
		return m, nil
	}

	ctx := context.Background()
	story, err := m.svc.Catalog.Story(ctx, m.lang, m.mode, item.story.ID)
	if err != nil {
		m.err = err
		m.status = "story unavailable offline"
		return m, nil
	}

	m.current = story
	m.view = viewReader
	m.viewport.SetContent(m.renderStory(*story))
	m.viewport.GotoTop()

	stats := m.svc.Engagement.RecordReadingDay()
	svc := m.svc
	id := story.ID
	recordHistory := func() tea.Msg {
		err := svc.History.Record(context.Background(), domain.HistoryEntry{
			StoryID:   id,
			Timestamp: nowUnix(),
			Progress:  0,
		})
		if err != nil {
			svc.Logger.Warn("history record failed", "storyId", id, "error", err)
		}
		return statusMsg(fmt.Sprintf("reading · streak %d", stats.CurrentStreak))
	}
	return m, recordHistory
}

// closeReader returns to the browse list, recording how far the reader
// scrolled. History dedupes by story, so this replaces the entry written
// when the story was opened.
func (m Model) closeReader() (tea.Model, tea.Cmd) {
	svc := m.svc
	id := m.current.ID
	progress := m.viewport.ScrollPercent()

	m.view = viewBrowse
	m.current = nil
	m.refreshList(m.stories)

	return m, func() tea.Msg {
		err := svc.History.Record(context.Background(), domain.HistoryEntry{
			StoryID:   id,
			Timestamp: nowUnix(),
			Progress:  progress,
		})
		if err != nil {
			svc.Logger.Warn("history record failed", "storyId", id, "error", err)
		}
		return nil
	}
}

func (m Model) toggleFavorite() (tea.Model, tea.Cmd) {
	var id domain.StoryID
	switch m.view {
	case viewReader:
		if m.current == nil {
			return m, nil
		}
		id = m.current.ID
	default:
		item, ok := m.list.SelectedItem().(storyItem)
		if !ok {
			return m, nil
		}
		id = item.story.ID
	}

	svc := m.svc
	return m, func() tea.Msg {
		ctx := context.Background()
		if err := svc.Favorites.Toggle(ctx, id); err != nil {
			return statusMsg(errorStyle.Render("favorite failed: " + err.Error()))
		}
		if svc.Favorites.Contains(ctx, id) {
			return statusMsg("added to favorites")
		}
		return statusMsg("removed from favorites")
	}
}

func (m Model) shareCurrent() tea.Cmd {
	svc := m.svc
	id := m.current.ID
	return func() tea.Msg {
		if err := svc.Opener.OpenStory(id.String()); err != nil {
			return statusMsg(errorStyle.Render("share failed: " + err.Error()))
		}
		stats := svc.Engagement.RecordShare(id)
		return statusMsg(fmt.Sprintf("shared · %d total", stats.ShareCount))
	}
}

// draftRetelling seeds a new draft from the open story. Guest drafts
// expire after a day; signed-in drafts live on the server.
func (m Model) draftRetelling() tea.Cmd {
	svc := m.svc
	story := *m.current
	return func() tea.Msg {
		draft, err := svc.Drafts.Create(context.Background(),
			"Retelling: "+story.Title, "", story.Language)
		if err != nil {
			return statusMsg(errorStyle.Render("draft failed: " + err.Error()))
		}
		return statusMsg("draft started: " + draft.Title)
	}
}

func (m *Model) applySearch(query string) {
	if strings.TrimSpace(query) == "" {
		m.refreshList(m.stories)
		return
	}
	results := m.svc.Search.Search(query)
	matched := make([]domain.Story, 0, len(results))
	for _, r := range results {
		matched = append(matched, r.Story)
	}
	m.refreshList(matched)
}

func (m *Model) refreshList(stories []domain.Story) {
	ctx := context.Background()
	favorites := make(map[domain.StoryID]struct{})
	for _, id := range m.svc.Favorites.List(ctx) {
		favorites[id] = struct{}{}
	}

	items := make([]list.Item, len(stories))
	for i, story := range stories {
		_, fav := favorites[story.ID]
		items[i] = storyItem{story: story, favorite: fav}
	}
	m.list.SetItems(items)
}

func (m Model) handlePreferencesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	prefs := m.svc.Preferences.Get(ctx)

	switch msg.String() {
	case "L":
		next := nextLanguage(prefs.Language)
		if err := m.svc.Preferences.Update(ctx, reconcile.PreferencesPatch{Language: &next}); err != nil {
			m.status = errorStyle.Render(err.Error())
			return m, nil
		}
		m.lang = next
		m.svc.Search.Clear()
		return m, m.loadStories(false)
	case "M":
		next := domain.AudienceKids
		if prefs.Mode == domain.AudienceKids {
			next = domain.AudienceAdults
		}
		if err := m.svc.Preferences.Update(ctx, reconcile.PreferencesPatch{Mode: &next}); err != nil {
			m.status = errorStyle.Render(err.Error())
			return m, nil
		}
		m.mode = next
		m.svc.Search.Clear()
		return m, m.loadStories(false)
	case "+", "=":
		size := prefs.FontSize + 2
		_ = m.svc.Preferences.Update(ctx, reconcile.PreferencesPatch{FontSize: &size})
		return m, nil
	case "-":
		size := prefs.FontSize - 2
		if size < 10 {
			size = 10
		}
		_ = m.svc.Preferences.Update(ctx, reconcile.PreferencesPatch{FontSize: &size})
		return m, nil
	case "a":
		auto := !prefs.AutoScroll
		_ = m.svc.Preferences.Update(ctx, reconcile.PreferencesPatch{AutoScroll: &auto})
		return m, nil
	case "i":
		if !m.svc.Session.Authenticated() {
			m.status = "sign in first to import guest favorites"
			return m, nil
		}
		svc := m.svc
		return m, func() tea.Msg {
			if err := svc.Favorites.ImportGuest(context.Background()); err != nil {
				return statusMsg(errorStyle.Render("import failed: " + err.Error()))
			}
			return statusMsg("guest favorites imported")
		}
	}
	return m, nil
}

func nextLanguage(lang domain.Language) domain.Language {
	order := []domain.Language{domain.LanguageEnglish, domain.LanguageTamil, domain.LanguageHindi}
	for i, l := range order {
		if l == lang {
			return order[(i+1)%len(order)]
		}
	}
	return order[0]
}
