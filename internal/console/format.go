package console

import (
	"errors"
	"fmt"
	"strings"
	"vidcat/internal/failure"
	"vidcat/internal/models"
	"vidcat/internal/search"

	"github.com/fatih/color"
)

const maxDescription = 200

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()

	statusColors = map[models.Status]*color.Color{
		models.StatusPlanned:   color.New(color.FgCyan),
		models.StatusWatching:  color.New(color.FgYellow),
		models.StatusCompleted: color.New(color.FgGreen),
	}
)

func statusLabel(s models.Status) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(s)
	}
	return string(s)
}

func FormatVideoList(videos []models.Video) string {
	if len(videos) == 0 {
		return "No videos found.\n"
	}

	var message strings.Builder
	message.WriteString(bold(fmt.Sprintf("Catalog (%d):", len(videos))) + "\n")
	for _, v := range videos {
		message.WriteString(fmt.Sprintf("%4s  %-32s %-9s %-9s ep %d/%d  ★ %.1f\n",
			v.ID, truncate(v.Title, 32), v.Type, statusLabel(v.Status), v.CurrentEpisode, v.Episodes, v.Rating))
	}
	return message.String()
}

func FormatVideo(v models.Video) string {
	var message strings.Builder
	message.WriteString(bold(fmt.Sprintf("%s (#%s)", v.Title, v.ID)) + "\n")
	message.WriteString(fmt.Sprintf("Type: %s\n", v.Type))
	message.WriteString(fmt.Sprintf("Status: %s\n", statusLabel(v.Status)))
	message.WriteString(fmt.Sprintf("Progress: episode %d of %d\n", v.CurrentEpisode, v.Episodes))
	message.WriteString(fmt.Sprintf("Rating: %.1f\n", v.Rating))

	if v.Year != nil {
		message.WriteString(fmt.Sprintf("Year: %d\n", *v.Year))
	}
	if v.Genre != "" {
		message.WriteString(fmt.Sprintf("Genre: %s\n", v.Genre))
	}
	if v.Director != "" {
		message.WriteString(fmt.Sprintf("Director: %s\n", v.Director))
	}
	if v.Actors != "" {
		message.WriteString(fmt.Sprintf("Actors: %s\n", v.Actors))
	}
	if v.Description != "" {
		message.WriteString(fmt.Sprintf("Description: %s\n", truncate(v.Description, maxDescription)))
	}
	if v.VideoURL != "" {
		message.WriteString(fmt.Sprintf("Video: %s\n", v.VideoURL))
	}
	if v.UpdatedAt != "" {
		message.WriteString(faint(fmt.Sprintf("Updated %s", v.UpdatedAt)) + "\n")
	}
	return message.String()
}

// FormatSearch renders what the search controller currently shows. A pending
// search keeps the previous page on screen below the notice.
func FormatSearch(snap search.Snapshot) string {
	var message strings.Builder

	switch snap.State {
	case search.Idle:
		return "Enter a search term to find videos.\n"
	case search.Pending:
		message.WriteString(faint(fmt.Sprintf("Searching for %q...", snap.Query.Term)) + "\n")
	case search.Failed:
		msg := "search failed"
		if snap.Failure != nil {
			msg = snap.Failure.Message
		}
		message.WriteString(red(msg) + "\n")
		return message.String()
	}

	res := snap.Result
	if res.Query.Term == "" {
		return message.String()
	}
	if len(res.Hits) == 0 {
		message.WriteString(fmt.Sprintf("No videos match %q.\n", res.Query.Term))
		return message.String()
	}

	message.WriteString(bold(fmt.Sprintf("Results for %q: %d found, page %d of %d", res.Query.Term, res.Total, res.Query.Page, snap.TotalPages)) + "\n\n")
	offset := (res.Query.Page - 1) * res.Query.PageSize
	for i, hit := range res.Hits {
		message.WriteString(fmt.Sprintf("%d. %s (#%s)\n", offset+i+1, hit.Title, hit.ID))

		var facts []string
		if hit.Year > 0 {
			facts = append(facts, fmt.Sprintf("%d", hit.Year))
		}
		if genre := firstNonEmpty(hit.GenreName, hit.Genre); genre != "" {
			facts = append(facts, genre)
		}
		if hit.Rating > 0 {
			facts = append(facts, fmt.Sprintf("★ %.1f", hit.Rating))
		}
		if hit.Duration != "" {
			facts = append(facts, hit.Duration)
		}
		if hit.Views > 0 {
			facts = append(facts, fmt.Sprintf("%d views", hit.Views))
		}
		if len(facts) > 0 {
			message.WriteString("   " + strings.Join(facts, " · ") + "\n")
		}
		if hit.Director != "" {
			message.WriteString(fmt.Sprintf("   Director: %s\n", hit.Director))
		}
		if hit.Description != "" {
			message.WriteString("   " + faint(truncate(hit.Description, maxDescription)) + "\n")
		}
	}

	if pager := formatPager(res.Query.Page, snap.TotalPages); pager != "" {
		message.WriteString("\n" + pager + "\n")
	}
	return message.String()
}

func formatPager(current, total int) string {
	window := search.PageWindow(current, total)
	if len(window) == 0 {
		return ""
	}

	parts := make([]string, len(window))
	for i, p := range window {
		switch p {
		case 0:
			parts[i] = "..."
		case current:
			parts[i] = bold(fmt.Sprintf("[%d]", p))
		default:
			parts[i] = fmt.Sprintf("%d", p)
		}
	}
	return "Pages: " + strings.Join(parts, " ")
}

func FormatStats(snap models.StatsSnapshot) string {
	var message strings.Builder
	message.WriteString(bold(fmt.Sprintf("Total: %d", snap.Total)) + "\n")
	for _, st := range models.Statuses {
		message.WriteString(fmt.Sprintf("  %-10s %d\n", statusLabel(st)+":", snap.ByStatus[st]))
	}
	for _, t := range models.VideoTypes {
		message.WriteString(fmt.Sprintf("  %-10s %d\n", string(t)+":", snap.ByType[t]))
	}
	message.WriteString(faint(fmt.Sprintf("(%s)", snap.Source)) + "\n")
	return message.String()
}

func FormatDashboard(snap models.StatsSnapshot, recent []models.Video) string {
	var message strings.Builder
	message.WriteString(FormatStats(snap))
	message.WriteString("\n" + bold("Recently added:") + "\n")
	if len(recent) == 0 {
		message.WriteString("  nothing yet\n")
	}
	for _, v := range recent {
		message.WriteString(fmt.Sprintf("  %s (#%s) %s\n", v.Title, v.ID, statusLabel(v.Status)))
	}
	return message.String()
}

func FormatPlayInfo(id models.ID, info models.PlayInfo) string {
	if info.PlayURL == "" && len(info.BackupURLs) == 0 {
		return fmt.Sprintf("No playback links for #%s.\n", id)
	}

	var message strings.Builder
	message.WriteString(fmt.Sprintf("Play #%s: %s\n", id, info.PlayURL))
	for i, u := range info.BackupURLs {
		message.WriteString(fmt.Sprintf("  backup %d: %s\n", i+1, u))
	}
	return message.String()
}

// ErrorMessage is the text shown for a failed operation: the failure's own
// message, without the operation prefix.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var f *failure.Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return err.Error()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
