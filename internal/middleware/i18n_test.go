package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNegotiateLocale(t *testing.T) {
	tests := []struct {
		name     string
		locales  []string
		fallback string
		headers  map[string]string
		want     string
	}{
		{
			name:    "x-locale wins over accept-language",
			locales: []string{"en", "id"},
			headers: map[string]string{"X-Locale": "ID", "Accept-Language": "en-US"},
			want:    "id",
		},
		{
			name:    "accept-language quality order",
			locales: []string{"en", "id"},
			headers: map[string]string{"Accept-Language": "fr-FR,id;q=0.5,en;q=0.2"},
			want:    "id",
		},
		{
			name:    "regional variant matches base language",
			locales: []string{"en", "id"},
			headers: map[string]string{"Accept-Language": "en-GB"},
			want:    "en",
		},
		{
			name:     "unsupported language uses fallback",
			locales:  []string{"en", "id"},
			fallback: "id",
			headers:  map[string]string{"Accept-Language": "fr-FR"},
			want:     "id",
		},
		{
			name:     "unsupported fallback uses first locale",
			locales:  []string{"en", "id"},
			fallback: "de",
			want:     "en",
		},
		{
			name:    "garbage header ignored",
			locales: []string{"en", "id"},
			headers: map[string]string{"Accept-Language": "not a language ;;;"},
			want:    "en",
		},
		{
			name:    "no usable locales negotiates english",
			locales: []string{"???"},
			headers: map[string]string{"Accept-Language": "id"},
			want:    "en",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := newNegotiator(tc.locales, tc.fallback).negotiate(req); got != tc.want {
				t.Fatalf("negotiate() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		resolver CountryLookup
		want     string
	}{
		{
			name:    "cdn header first",
			headers: map[string]string{"CF-IPCountry": "nl", "X-Country-Code": "us"},
			want:    "NL",
		},
		{
			name:    "unknown cdn country skipped",
			headers: map[string]string{"CF-IPCountry": "XX", "X-Country-Code": "us"},
			want:    "US",
		},
		{
			name:    "accept-language region is not a country",
			headers: map[string]string{"Accept-Language": "en-GB"},
			want:    "",
		},
		{
			name: "resolver on client ip",
			resolver: func(ip string) (string, error) {
				if ip != "203.0.113.4" {
					return "", errors.New("unexpected ip " + ip)
				}
				return "br", nil
			},
			want: "BR",
		},
		{
			name:     "resolver error returns empty",
			resolver: func(ip string) (string, error) { return "", errors.New("boom") },
			want:     "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.4:80"
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := ResolveCountry(req, tc.resolver); got != tc.want {
				t.Fatalf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.10:1234"
	if got := ClientIP(req); got != "198.51.100.10" {
		t.Fatalf("ClientIP() = %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.1 , 198.51.100.2")
	if got := ClientIP(req); got != "203.0.113.1" {
		t.Fatalf("ClientIP() forwarded = %q", got)
	}
}

func TestLocaleFromContext(t *testing.T) {
	ctx := context.Background()
	if got := LocaleFromContext(ctx); got != "en" {
		t.Fatalf("LocaleFromContext() default = %q, want %q", got, "en")
	}
	ctx = context.WithValue(ctx, LocaleKey, "id")
	if got := LocaleFromContext(ctx); got != "id" {
		t.Fatalf("LocaleFromContext() with value = %q, want %q", got, "id")
	}
}

func TestI18NKeepsCountryOutOfLocale(t *testing.T) {
	var gotLocale, gotCountry string
	mw := I18N([]string{"en", "id"}, "en", func(ip string) (string, error) { return "id", nil })
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocale = LocaleFromContext(r.Context())
		gotCountry = CountryFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if gotLocale != "en" || gotCountry != "ID" {
		t.Fatalf("locale=%q country=%q, want en/ID", gotLocale, gotCountry)
	}
	if got := rec.Header().Get("Content-Language"); got != "en" {
		t.Fatalf("Content-Language = %q", got)
	}
}
