package pages

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestStatusPageEscapesContent(t *testing.T) {
	var buf bytes.Buffer
	err := StatusPage(Status{
		Tone:    ToneError,
		Title:   "Link <invalid>",
		Message: `"quoted" & more`,
	}).Render(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	html := buf.String()
	if strings.Contains(html, "<invalid>") {
		t.Error("title was not escaped")
	}
	for _, want := range []string{"&lt;invalid&gt;", "&amp; more", `data-tone="error"`, "<!doctype html>"} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestToneClassesOverrideBase(t *testing.T) {
	for tone := range toneClasses {
		cls := CardClass(tone)
		if strings.Contains(cls, "bg-white") || strings.Contains(cls, "border-gray-200") {
			t.Errorf("%s card keeps conflicting base classes: %q", tone, cls)
		}
		if !strings.Contains(cls, "rounded-lg") {
			t.Errorf("%s card lost layout classes: %q", tone, cls)
		}
		if strings.Contains(TitleClass(tone), "text-gray-900") {
			t.Errorf("%s title keeps base colour", tone)
		}
	}
}

func TestDetailLineOptional(t *testing.T) {
	var with, without bytes.Buffer
	_ = StatusPage(Status{Tone: ToneSuccess, Title: "Paid", Message: "ok", Detail: "EUR 10.00"}).Render(context.Background(), &with)
	_ = StatusPage(Status{Tone: ToneSuccess, Title: "Paid", Message: "ok"}).Render(context.Background(), &without)

	if !strings.Contains(with.String(), "EUR 10.00") {
		t.Error("detail line missing")
	}
	if strings.Count(without.String(), "<p ") != 1 {
		t.Error("empty detail should not render a paragraph")
	}
}

func TestConfirmationForm(t *testing.T) {
	var with, without bytes.Buffer
	_ = StatusPage(Status{Tone: ToneInfo, Title: "Confirm", Message: "ok", Action: "/links/fee/a\"b", Button: "Approve"}).Render(context.Background(), &with)
	_ = StatusPage(Status{Tone: ToneInfo, Title: "Confirm", Message: "ok"}).Render(context.Background(), &without)

	html := with.String()
	if !strings.Contains(html, `<form method="post" action="/links/fee/a&#34;b">`) {
		t.Errorf("form missing or unescaped action:\n%s", html)
	}
	if !strings.Contains(html, ">Approve</button>") {
		t.Error("button label missing")
	}
	if strings.Contains(without.String(), "<form") {
		t.Error("a page without an action should not render a form")
	}
}
