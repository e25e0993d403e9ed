// Package pages renders the HTML status pages shown after following a
// one-time link from an email.
package pages

import (
	"context"
	"fmt"
	"io"

	twmerge "github.com/Oudwins/tailwind-merge-go"
	"github.com/a-h/templ"
)

// Tone selects the colour scheme of a status page.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneInfo    Tone = "info"
	ToneWarning Tone = "warning"
	ToneError   Tone = "error"
)

const (
	cardBase  = "mx-auto mt-24 max-w-lg rounded-lg border p-8 shadow-sm bg-white border-gray-200"
	titleBase = "text-2xl font-semibold text-gray-900"
	bodyBase  = "mt-4 text-base text-gray-600"
	buttonCls = "mt-6 rounded-md px-4 py-2 text-sm font-medium text-white bg-gray-900 hover:bg-gray-700"
)

var toneClasses = map[Tone]struct{ card, title string }{
	ToneSuccess: {"border-green-300 bg-green-50", "text-green-800"},
	ToneInfo:    {"border-blue-300 bg-blue-50", "text-blue-800"},
	ToneWarning: {"border-amber-300 bg-amber-50", "text-amber-800"},
	ToneError:   {"border-red-300 bg-red-50", "text-red-800"},
}

// Status describes one status page.
type Status struct {
	Tone    Tone
	Title   string
	Message string
	// Detail is an optional secondary line, such as an amount.
	Detail string
	// Action, when set, renders a confirmation button posting to that path.
	Action string
	Button string
}

// CardClass returns the merged card classes for tone.
func CardClass(tone Tone) string {
	return twmerge.Merge(cardBase, toneClasses[tone].card)
}

// TitleClass returns the merged heading classes for tone.
func TitleClass(tone Tone) string {
	return twmerge.Merge(titleBase, toneClasses[tone].title)
}

// StatusPage renders a full HTML document for s.
func StatusPage(s Status) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!doctype html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, `<title>%s</title></head><body class="bg-gray-100 font-sans">`,
			templ.EscapeString(s.Title)); err != nil {
			return err
		}
		if err := card(s).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func card(s Status) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<main class="%s" data-tone="%s"><h1 class="%s">%s</h1><p class="%s">%s</p>`,
			templ.EscapeString(CardClass(s.Tone)),
			templ.EscapeString(string(s.Tone)),
			templ.EscapeString(TitleClass(s.Tone)),
			templ.EscapeString(s.Title),
			bodyBase,
			templ.EscapeString(s.Message),
		)
		if err != nil {
			return err
		}
		if s.Detail != "" {
			if _, err := fmt.Fprintf(w, `<p class="%s">%s</p>`,
				twmerge.Merge(bodyBase, "mt-2 text-sm text-gray-500"),
				templ.EscapeString(s.Detail)); err != nil {
				return err
			}
		}
		if s.Action != "" {
			if _, err := fmt.Fprintf(w, `<form method="post" action="%s"><button type="submit" class="%s">%s</button></form>`,
				templ.EscapeString(s.Action),
				buttonCls,
				templ.EscapeString(s.Button)); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, `</main>`)
		return err
	})
}
