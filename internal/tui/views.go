package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/engagement"
)

func nowUnix() int64 { return time.Now().Unix() }

// View renders the active screen
func (m Model) View() string {
	switch m.view {
	case viewReader:
		return m.viewReaderScreen()
	case viewPreferences:
		return m.viewPreferencesScreen()
	default:
		return m.viewBrowseScreen()
	}
}

func (m Model) viewBrowseScreen() string {
	var b strings.Builder

	if m.banner != "" {
		b.WriteString(streakStyle.Render(m.banner))
		b.WriteString("\n")
	}
	if m.searching {
		b.WriteString(titleStyle.Render("Search"))
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString(m.list.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString(helpStyle.Render("enter read · f favorite · / search · p preferences · r refresh · q quit"))
	return b.String()
}

func (m Model) viewReaderScreen() string {
	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString(helpStyle.Render("f favorite · l like · s share · n new retelling · esc back · q quit"))
	return b.String()
}

func (m Model) viewPreferencesScreen() string {
	ctx := context.Background()
	prefs := m.svc.Preferences.Get(ctx)
	profile := m.svc.Profile.Get(ctx)
	stats := m.svc.Engagement.Stats()
	drafts := m.svc.Drafts.List(ctx)

	account := "guest"
	if m.svc.Session.Authenticated() {
		account = "signed in"
	}
	name := profile.DisplayName
	if name == "" {
		name = "(not set)"
	}

	badges := make([]string, len(stats.Badges))
	for i, id := range stats.Badges {
		badges[i] = engagement.Describe(id)
	}

	row := func(label, value string) string {
		return prefsLabelStyle.Render(label) + prefsValueStyle.Render(value)
	}

	lines := []string{
		titleStyle.Render("Preferences"),
		"",
		row("Account", account),
		row("Display name", name),
		row("Language", string(prefs.Language)),
		row("Mode", string(prefs.Mode)),
		row("Font size", fmt.Sprintf("%d", prefs.FontSize)),
		row("Auto scroll", fmt.Sprintf("%t", prefs.AutoScroll)),
		"",
		row("Streak", streakStyle.Render(fmt.Sprintf("%d day(s), best %d", stats.CurrentStreak, stats.BestStreak))),
		row("Shares", fmt.Sprintf("%d", stats.ShareCount)),
		row("Badges", strings.Join(badges, ", ")),
		row("Drafts", fmt.Sprintf("%d", len(drafts))),
		"",
		helpStyle.Render("L language · M mode · +/- font size · a auto scroll · i import guest favorites · esc back"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) statusLine() string {
	status := m.status
	if m.err != nil && status == "" {
		status = errorStyle.Render(m.err.Error())
	}
	return statusStyle.Render(status) + "\n"
}

func (m Model) renderStory(story domain.Story) string {
	width := m.width - 4
	if width < 20 {
		width = 76
	}

	var b strings.Builder
	b.WriteString(readerTitleStyle.Render(story.Title))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(fmt.Sprintf("by %s · %s · %d min", story.Author, story.Category, story.ReadMinutes)))
	b.WriteString("\n\n")
	b.WriteString(readerBodyStyle.Width(width).Render(story.Content))
	return b.String()
}
