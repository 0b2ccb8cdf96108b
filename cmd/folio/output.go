// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/Folio/services/folio/model"
)

// Folio palette, warm paper and ink.
var (
	colorInk    = lipgloss.Color("#E8DCC4")
	colorAccent = lipgloss.Color("#D98E4A")
	colorMuted  = lipgloss.Color("#7A6F5F")
	colorOK     = lipgloss.Color("#8DBF6A")
	colorWarn   = lipgloss.Color("#E5C158")
	colorErr    = lipgloss.Color("#D9534F")
)

var styles = struct {
	Title   lipgloss.Style
	ID      lipgloss.Style
	Text    lipgloss.Style
	Muted   lipgloss.Style
	OK      lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	ID:      lipgloss.NewStyle().Foreground(colorMuted),
	Text:    lipgloss.NewStyle().Foreground(colorInk),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	OK:      lipgloss.NewStyle().Foreground(colorOK),
	Warning: lipgloss.NewStyle().Foreground(colorWarn),
	Error:   lipgloss.NewStyle().Bold(true).Foreground(colorErr),
}

// printer writes command output, styled only when w is a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter(w io.Writer) printer {
	p := printer{w: w}
	if f, ok := w.(*os.File); ok {
		p.styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

func (p printer) paint(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p printer) title(text string) {
	fmt.Fprintln(p.w, p.paint(styles.Title, text))
}

func (p printer) ok(format string, args ...any) {
	fmt.Fprintln(p.w, p.paint(styles.OK, "✓ ")+fmt.Sprintf(format, args...))
}

// failed reports an intent that was rolled back.
func (p printer) failed(err error) {
	fmt.Fprintln(p.w, p.paint(styles.Error, "✗ rolled back: ")+err.Error())
}

func (p printer) items(items []model.Item) {
	for _, it := range items {
		fmt.Fprintln(p.w, p.item(it))
	}
}

// item renders one record on a single line.
func (p printer) item(it model.Item) string {
	var b strings.Builder
	b.WriteString(p.paint(styles.ID, fmt.Sprintf("%-5s", "#"+it.ID.String())))
	b.WriteString(" ")

	switch it.Kind {
	case model.KindReview, model.KindComment:
		b.WriteString(p.paint(styles.Text, attr(it, "content")))
		if book := attr(it, "book_id"); book != "" {
			b.WriteString(p.paint(styles.Muted, " · book "+book))
		}
	case model.KindUser:
		b.WriteString(p.paint(styles.Text, attr(it, "name")))
	case model.KindBook:
		b.WriteString(p.paint(styles.Text, attr(it, "title")))
	case model.KindNotification:
		b.WriteString(p.paint(styles.Text, attr(it, "message")))
	}

	for _, tag := range p.tags(it) {
		b.WriteString("  ")
		b.WriteString(tag)
	}
	return b.String()
}

func (p printer) tags(it model.Item) []string {
	var out []string
	if it.Like != nil {
		heart := "♡"
		if it.Like.IsLiked {
			heart = "♥"
		}
		out = append(out, p.paint(styles.Warning, fmt.Sprintf("%s %d", heart, it.Like.LikesCount)))
	}
	if it.Follow != nil {
		out = append(out, p.paint(styles.Muted, followLabel(*it.Follow)))
	}
	if it.Block != nil && it.Block.IsBlocked {
		out = append(out, p.paint(styles.Error, "blocked"))
	}
	if it.Notification != nil && !it.Notification.IsRead {
		out = append(out, p.paint(styles.Warning, "unread"))
	}
	if it.ToRead != nil && it.ToRead.InList {
		out = append(out, p.paint(styles.OK, "to read"))
	}
	return out
}

func followLabel(st model.FollowState) string {
	switch {
	case st.IsFollowing:
		return fmt.Sprintf("following · %d followers", st.FollowersCount)
	case st.FollowRequestStatus == model.RequestPending:
		return fmt.Sprintf("requested · %d followers", st.FollowersCount)
	}
	return fmt.Sprintf("%d followers", st.FollowersCount)
}

func attr(it model.Item, name string) string {
	v, ok := it.Attr(name)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
