package sse

import (
	"bufio"
	"bytes"
	"io"
)

// Reader splits an event stream into records. Records may arrive split
// across any number of transport reads; Next buffers until a blank line ends
// the record.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the data of the next complete record. Multi-line data fields
// are joined with "\n"; comments and other fields are ignored, and records
// without data are skipped. At the end of the stream it returns io.EOF and a
// trailing record that was never terminated is dropped.
func (r *Reader) Next() ([]byte, error) {
	var (
		data    []byte
		hasData bool
	)
	for {
		line, err := r.br.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if hasData {
				return data, nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		field, value, found := bytes.Cut(line, []byte(":"))
		if !found || string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if hasData {
			data = append(data, '\n')
		}
		data = append(data, value...)
		hasData = true
	}
}
