package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

// LocaleKey stores the negotiated language code in the request context.
var LocaleKey = localeContextKey{}

var localeMatcher = language.NewMatcher([]language.Tag{language.Russian, language.English})

// Locale negotiates the reply language from X-Locale or Accept-Language.
// Chat events usually carry their own language; this is the fallback.
func Locale(defaultLocale string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, defaultLocale)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		return normalizeLocale(v)
	}
	if v := strings.TrimSpace(r.Header.Get("Accept-Language")); v != "" {
		return normalizeLocale(v)
	}
	if fallback != "" {
		return normalizeLocale(fallback)
	}
	return "ru"
}

func normalizeLocale(accept string) string {
	tag, _ := language.MatchStrings(localeMatcher, accept)
	base, _ := tag.Base()
	return base.String()
}

// LocaleFromContext returns the negotiated language, "ru" when unset.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "ru"
}
