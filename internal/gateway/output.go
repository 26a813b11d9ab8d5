package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Output is the provider result before normalization. Providers return one of
// URL, File or List; anything else is carried as Unknown so that Resolve can
// report it.
type Output interface {
	outputKind() string
}

// URLAccessor is implemented by outputs that expose their location through a
// zero-argument accessor instead of a plain string.
type URLAccessor interface {
	URL() string
}

// URL is a plain location string returned by the provider.
type URL string

// File is a file handle returned by the provider; its location is read through URL().
type File struct {
	href string
}

// NewFile wraps a location in a File output.
func NewFile(href string) File {
	return File{href: href}
}

// URL returns the file location.
func (f File) URL() string { return f.href }

// List is an ordered sequence of URL or File outputs.
type List []Output

// Unknown holds a payload whose shape is not recognized.
type Unknown struct {
	Raw json.RawMessage
}

func (URL) outputKind() string     { return "url" }
func (File) outputKind() string    { return "file" }
func (List) outputKind() string    { return "list" }
func (Unknown) outputKind() string { return "unknown" }

var (
	_ Output      = URL("")
	_ Output      = File{}
	_ URLAccessor = File{}
	_ Output      = List(nil)
	_ Output      = Unknown{}
)

// DecodeOutput maps a provider JSON payload onto the Output union: strings
// become URL, objects with a string "url" field become File and arrays become
// List. It never fails; unrecognized shapes are returned as Unknown.
func DecodeOutput(raw json.RawMessage) Output {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Unknown{Raw: raw}
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Unknown{Raw: raw}
		}
		return URL(s)
	case '{':
		var obj struct {
			URL *string `json:"url"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil || obj.URL == nil {
			return Unknown{Raw: raw}
		}
		return NewFile(*obj.URL)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Unknown{Raw: raw}
		}
		list := make(List, 0, len(items))
		for _, item := range items {
			list = append(list, DecodeOutput(item))
		}
		return list
	default:
		return Unknown{Raw: raw}
	}
}

// locate returns the fetchable location for out, following the first element
// of a list. Nested lists are not a recognized shape.
func locate(out Output) (string, bool) {
	switch v := out.(type) {
	case URL:
		return validLocation(string(v))
	case URLAccessor:
		return validLocation(v.URL())
	case List:
		if len(v) == 0 {
			return "", false
		}
		if _, nested := v[0].(List); nested {
			return "", false
		}
		return locate(v[0])
	default:
		return "", false
	}
}

func validLocation(loc string) (string, bool) {
	loc = strings.TrimSpace(loc)
	lower := strings.ToLower(loc)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return loc, true
	}
	return "", false
}
