package attr

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/vertti/gxf2bed/internal/parser"
)

// Grammar parses a raw attribute column into a Table.
//
// The set of grammars is closed: GTF and GFF3. One is selected per input
// before parsing starts.
type Grammar interface {
	Name() string
	Parse(text []byte) (*Table, error)
	sealed()
}

// GTF parses `key "value";` attribute pairs.
type GTF struct{}

// GFF3 parses `key=value[,value]` attribute pairs with percent-encoding.
type GFF3 struct{}

var (
	_ Grammar = GTF{}
	_ Grammar = GFF3{}
)

// Name implements Grammar.
func (GTF) Name() string { return "GTF" }

func (GTF) sealed() {}

// Parse implements Grammar. Values may be quoted or bare; quoted values
// may contain ';'. The trailing ';' is optional.
func (GTF) Parse(text []byte) (*Table, error) {
	t := NewTable(8)
	i, n := 0, len(text)
	for i < n {
		for i < n && (isSpace(text[i]) || text[i] == ';') {
			i++
		}
		if i >= n {
			break
		}

		keyStart := i
		for i < n && !isSpace(text[i]) && text[i] != ';' {
			i++
		}
		key := string(text[keyStart:i])

		for i < n && isSpace(text[i]) {
			i++
		}

		var value string
		switch {
		case i >= n || text[i] == ';':
		case text[i] == '"':
			end := bytes.IndexByte(text[i+1:], '"')
			if end < 0 {
				return nil, &parser.MalformedRecordError{
					Reason: fmt.Sprintf("unterminated quote in GTF attribute %q", key),
				}
			}
			value = string(text[i+1 : i+1+end])
			i += end + 2
			for i < n && text[i] != ';' {
				if !isSpace(text[i]) {
					return nil, &parser.MalformedRecordError{
						Reason: fmt.Sprintf("unexpected text after GTF attribute %q", key),
					}
				}
				i++
			}
		default:
			valStart := i
			for i < n && text[i] != ';' {
				i++
			}
			value = string(bytes.TrimRight(text[valStart:i], " \t"))
		}
		t.Add(key, value)
	}
	return t, nil
}

// Name implements Grammar.
func (GFF3) Name() string { return "GFF3" }

func (GFF3) sealed() {}

// Parse implements Grammar. List values are split on ',' before
// percent-decoding, so an escaped comma stays inside its value.
func (GFF3) Parse(text []byte) (*Table, error) {
	t := NewTable(8)
	for len(text) > 0 {
		var pair []byte
		if i := bytes.IndexByte(text, ';'); i >= 0 {
			pair, text = text[:i], text[i+1:]
		} else {
			pair, text = text, nil
		}
		pair = bytes.TrimSpace(pair)
		if len(pair) == 0 {
			continue
		}

		eq := bytes.IndexByte(pair, '=')
		if eq < 0 {
			return nil, &parser.MalformedRecordError{
				Reason: fmt.Sprintf("GFF3 attribute %q lacks '='", pair),
			}
		}
		key, err := unescape(pair[:eq])
		if err != nil {
			return nil, err
		}

		raw := pair[eq+1:]
		values := make([]string, 0, 1+bytes.Count(raw, []byte{','}))
		for {
			var item []byte
			if j := bytes.IndexByte(raw, ','); j >= 0 {
				item, raw = raw[:j], raw[j+1:]
			} else {
				item, raw = raw, nil
			}
			v, err := unescape(item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if raw == nil {
				break
			}
		}
		t.Add(key, values...)
	}
	return t, nil
}

func unescape(b []byte) (string, error) {
	if bytes.IndexByte(b, '%') < 0 {
		return string(b), nil
	}
	s, err := url.PathUnescape(string(b))
	if err != nil {
		return "", &parser.MalformedRecordError{
			Reason: fmt.Sprintf("invalid percent-encoding in %q", b),
		}
	}
	return s, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}
