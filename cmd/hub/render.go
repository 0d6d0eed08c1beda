package main

import (
	"context"
	"fmt"
	"strings"

	"engineerhub/cmd/hub/ui"
	"engineerhub/internal/api"
	"engineerhub/internal/config"
	"engineerhub/internal/logging"
	"engineerhub/internal/prefs"
)

// stylesFor loads the stored theme. A missing or broken preference store
// falls back to following the terminal.
func stylesFor(ctx context.Context, cfg *config.Config) ui.Styles {
	theme := prefs.ThemeSystem
	store, err := openPrefs(cfg)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("preferences unavailable: %v", err)
		return ui.NewStyles(ui.ThemeFor(theme))
	}
	defer store.Close()

	if t, err := store.Theme(ctx); err == nil {
		theme = t
	} else {
		logging.Get(logging.CategoryStore).Warn("failed to read theme: %v", err)
	}
	return ui.NewStyles(ui.ThemeFor(theme))
}

// postLine is the one-line listing form of a post.
func postLine(s ui.Styles, p api.Post) string {
	var b strings.Builder
	b.WriteString(s.Muted.Render(fmt.Sprintf("#%-5d", p.ID)))
	b.WriteString(" ")
	b.WriteString(s.Title.Render(p.Title))
	b.WriteString(s.Muted.Render(fmt.Sprintf("  by %s  ♥ %d  💬 %d", p.Author.DisplayName(), p.LikesCount, p.CommentsCount)))
	for _, tag := range p.Tags {
		b.WriteString(" ")
		b.WriteString(s.Tag.Render("#" + tag))
	}
	return b.String()
}

// postMarkdown renders a post, its snippet and its first comments as
// markdown for glamour.
func postMarkdown(p api.Post, comments []api.Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)

	liked := ""
	if p.IsLiked {
		liked = " (you liked this)"
	}
	fmt.Fprintf(&b, "*%s · %s · %d likes%s*\n\n", p.Author.DisplayName(),
		p.CreatedAt.Format("2006-01-02 15:04"), p.LikesCount, liked)

	b.WriteString(p.Content)
	b.WriteString("\n\n")

	if p.Snippet != nil && p.Snippet.Code != "" {
		fmt.Fprintf(&b, "```%s\n%s\n```\n\n", p.Snippet.Language, strings.TrimRight(p.Snippet.Code, "\n"))
	}
	if len(p.Tags) > 0 {
		tags := make([]string, len(p.Tags))
		for i, t := range p.Tags {
			tags[i] = "`#" + t + "`"
		}
		b.WriteString(strings.Join(tags, " "))
		b.WriteString("\n\n")
	}

	if len(comments) > 0 {
		fmt.Fprintf(&b, "## Comments (%d)\n\n", p.CommentsCount)
		for _, c := range comments {
			fmt.Fprintf(&b, "- **%s**: %s\n", c.Author.DisplayName(), c.Content)
		}
	}
	return b.String()
}
