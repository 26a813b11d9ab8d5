package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// I18N negotiates the response locale against locales, the codes the
// handlers carry messages for, and stores it in the request context together
// with the best-effort client country. The country is only recorded; it
// never selects a locale.
func I18N(locales []string, fallback string, lookup CountryLookup) func(http.Handler) http.Handler {
	n := newNegotiator(locales, fallback)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := n.negotiate(r)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country := ResolveCountry(r, lookup); country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type negotiator struct {
	codes    []string
	matcher  language.Matcher
	fallback string
}

// newNegotiator skips codes that are not BCP 47 tags. With nothing usable
// left it negotiates English only.
func newNegotiator(locales []string, fallback string) *negotiator {
	var (
		tags  []language.Tag
		codes []string
	)
	for _, code := range locales {
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		codes = append(codes, code)
	}
	if len(tags) == 0 {
		tags, codes = []language.Tag{language.English}, []string{"en"}
	}
	n := &negotiator{codes: codes, matcher: language.NewMatcher(tags), fallback: codes[0]}
	if v := n.match(fallback); v != "" {
		n.fallback = v
	}
	return n
}

// negotiate prefers an explicit X-Locale over Accept-Language.
func (n *negotiator) negotiate(r *http.Request) string {
	for _, header := range []string{"X-Locale", "Accept-Language"} {
		if v := n.match(r.Header.Get(header)); v != "" {
			return v
		}
	}
	return n.fallback
}

// match returns the supported code closest to an Accept-Language style
// value, or "" when nothing matches.
func (n *negotiator) match(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, idx, confidence := n.matcher.Match(tags...)
	if confidence == language.No {
		return ""
	}
	return n.codes[idx]
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		if first, _, _ := strings.Cut(xf, ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

// countryHeaders are set by CDNs and load balancers in front of the service.
var countryHeaders = []string{"CF-IPCountry", "X-Country-Code", "X-Appengine-Country"}

// ResolveCountry returns the upper-case ISO country code from a proxy header
// or, failing that, from lookup on the client IP.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, key := range countryHeaders {
		// Cloudflare reports XX for unknown and T1 for Tor.
		if val := strings.ToUpper(strings.TrimSpace(r.Header.Get(key))); val != "" && val != "XX" && val != "T1" {
			return val
		}
	}
	if lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := lookup(ip)
	if err != nil {
		return ""
	}
	return strings.ToUpper(country)
}
