// Package i18n renders localized notification text from embedded message files.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

const (
	fallbackTitle   = "fallback.title"
	fallbackMessage = "fallback.message"
)

// Catalog implements port.MessageCatalog with a go-i18n bundle
type Catalog struct {
	bundle        *i18n.Bundle
	defaultLocale string
}

// NewCatalog loads every embedded locale file. Lookups for an unknown
// locale fall back to defaultLocale and then to English.
func NewCatalog(defaultLocale string) (*Catalog, error) {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	if _, err := language.Parse(defaultLocale); err != nil {
		return nil, fmt.Errorf("invalid default locale %q: %w", defaultLocale, err)
	}

	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
	}

	return &Catalog{bundle: bundle, defaultLocale: defaultLocale}, nil
}

// Languages lists the locales with a loaded message file
func (c *Catalog) Languages() []string {
	tags := c.bundle.LanguageTags()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}

// Render returns the title and body for key. A key without a title uses
// the generic fallback so a notification always has one.
func (c *Catalog) Render(locale, key string, data map[string]interface{}) (string, string) {
	l := i18n.NewLocalizer(c.bundle, locale, c.defaultLocale)

	title, ok := c.localize(l, key+".title", data)
	if !ok {
		title, _ = c.localize(l, fallbackTitle, data)
		message, _ := c.localize(l, fallbackMessage, data)
		return title, message
	}
	message, _ := c.localize(l, key+".message", data)
	return title, message
}

func (c *Catalog) localize(l *i18n.Localizer, id string, data map[string]interface{}) (string, bool) {
	msg, err := l.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil || msg == "" {
		return "", false
	}
	return msg, true
}

var _ port.MessageCatalog = (*Catalog)(nil)
