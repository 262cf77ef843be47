package i18n

import "net/http"

// Middleware injects a localizer into every request context. With a fixed lang
// every request uses it; with an empty lang the browser's Accept-Language header
// picks among the loaded locales.
func Middleware(lang string) func(http.Handler) http.Handler {
	fixed := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fixed
			if lang == "" {
				loc = NewLocalizer(r.Header.Get("Accept-Language"))
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
