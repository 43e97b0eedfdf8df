// Package i18n localizes API messages and error reasons.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	bundle      *i18n.Bundle
	defaultLang = "en"
)

// Init loads every embedded locale file. lang is the bundle's default language
// and the fallback for contexts without a localizer.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return fmt.Errorf("list locale files: %w", err)
	}
	for _, name := range files {
		if _, err := b.LoadMessageFileFS(localeFS, name); err != nil {
			return fmt.Errorf("load locale file %s: %w", name, err)
		}
		slog.Debug("loaded locale file", "file", name)
	}

	bundle, defaultLang = b, lang
	return nil
}

// NewLocalizer creates a localizer for the given languages in preference order.
// Accept-Language header values are accepted as is.
func NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(bundle, langs...)
}

// Languages returns the tags that have a locale file.
func Languages() []language.Tag {
	return bundle.LanguageTags()
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return i18n.NewLocalizer(bundle, defaultLang)
}

// localize falls back to the message id when no translation exists.
func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	s, err := localizerFromCtx(ctx).Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID. The count is available as {{.Count}}.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

// Reason translates an error code whose message may embed the reason as {{.Reason}}.
func Reason(ctx context.Context, code, reason string) string {
	return Td(ctx, code, map[string]any{"Reason": reason})
}
