package handlers

import "sort"

const (
	codeBadRequest       = "bad_request"
	codeInvalidGrid      = "invalid_grid"
	codeConfigError      = "config_error"
	codePreprocessFailed = "preprocess_failed"
	codeRateLimited      = "rate_limited"
	codePayloadTooLarge  = "payload_too_large"
	codeTimeout          = "timeout"
	codeInternal         = "internal"
)

var messages = map[string]map[string]string{
	"en": {
		codeBadRequest:       "invalid request",
		codeInvalidGrid:      "grid size is out of range",
		codeConfigError:      "service is not configured",
		codePreprocessFailed: "could not prepare the portrait",
		codeRateLimited:      "the image provider is busy, try again shortly",
		codePayloadTooLarge:  "request body is too large",
		codeTimeout:          "the image provider did not answer in time",
		codeInternal:         "internal server error",
	},
	"id": {
		codeBadRequest:       "permintaan tidak valid",
		codeInvalidGrid:      "ukuran grid di luar batas",
		codeConfigError:      "layanan belum dikonfigurasi",
		codePreprocessFailed: "gagal menyiapkan potret",
		codeRateLimited:      "penyedia gambar sedang sibuk, coba lagi sebentar",
		codePayloadTooLarge:  "isi permintaan terlalu besar",
		codeTimeout:          "penyedia gambar tidak merespons tepat waktu",
		codeInternal:         "terjadi kesalahan pada server",
	},
}

// Locales lists the locales with a message catalog, English first.
func Locales() []string {
	out := make([]string, 0, len(messages))
	for code := range messages {
		if code != "en" {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return append([]string{"en"}, out...)
}

// message returns the localized text for code, falling back to English.
func message(locale, code string) string {
	if m, ok := messages[locale]; ok {
		if msg, ok := m[code]; ok {
			return msg
		}
	}
	return messages["en"][code]
}
