// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"testing"

	"golang.org/x/text/language"
)

func TestNew(t *testing.T) {
	t.Run("new i18n provider with empty locale string succeeds", func(t *testing.T) {
		provider, err := New("")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if provider == nil {
			t.Fatal("expected i18n provider to be non-nil")
		}
	})
	t.Run("german labels are translated", func(t *testing.T) {
		provider, err := New("de")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if got := provider.Get("Latitude"); got != "Breitengrad" {
			t.Errorf("expected translation to be %q, got %q", "Breitengrad", got)
		}
	})
	t.Run("english labels are returned untranslated", func(t *testing.T) {
		provider, err := New("en")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if got := provider.Get("Last observed"); got != "Last observed" {
			t.Errorf("expected source text, got %q", got)
		}
	})
}

func TestTag(t *testing.T) {
	t.Run("explicit locale is used", func(t *testing.T) {
		if got := Tag("de-DE"); got.String() != "de-DE" {
			t.Errorf("expected tag to be de-DE, got %s", got)
		}
	})
	t.Run("empty locale resolves to a tag", func(t *testing.T) {
		if got := Tag(""); got == language.Und {
			t.Error("expected detected tag, got undetermined")
		}
	})
}
