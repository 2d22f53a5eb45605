package post

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/c360/cqstream/errors"
)

// SegmentText is the type of a plain text segment.
const SegmentText = "text"

// Segment is one piece of a message: plain text or a CQ code such as an
// image or a mention.
type Segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// UnmarshalJSON accepts non-string data values and stores their JSON text.
func (s *Segment) UnmarshalJSON(b []byte) error {
	var wire struct {
		Type string                     `json:"type"`
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	s.Type = wire.Type
	s.Data = make(map[string]string, len(wire.Data))
	for k, v := range wire.Data {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			s.Data[k] = str
			continue
		}
		s.Data[k] = string(bytes.TrimSpace(v))
	}
	return nil
}

// String renders the segment as CQ code.
func (s Segment) String() string {
	if s.Type == SegmentText {
		return escapeText(s.Data["text"])
	}

	keys := make([]string, 0, len(s.Data))
	for k := range s.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("[CQ:")
	b.WriteString(s.Type)
	for _, k := range keys {
		b.WriteByte(',')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(escapeParam(s.Data[k]))
	}
	b.WriteByte(']')
	return b.String()
}

// Text creates a plain text segment.
func Text(text string) Segment {
	return Segment{Type: SegmentText, Data: map[string]string{"text": text}}
}

// Segments is a parsed message.
type Segments []Segment

// Text concatenates the text segments.
func (ss Segments) Text() string {
	var b strings.Builder
	for _, s := range ss {
		if s.Type == SegmentText {
			b.WriteString(s.Data["text"])
		}
	}
	return b.String()
}

// String renders the whole message as CQ code.
func (ss Segments) String() string {
	var b strings.Builder
	for _, s := range ss {
		b.WriteString(s.String())
	}
	return b.String()
}

// ParseSegments parses a message field, which is either a JSON string of CQ
// code or a JSON array of segments. An absent or null field yields no segments.
func ParseSegments(raw json.RawMessage) (Segments, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, errors.WrapInvalid(err, "post", "ParseSegments", "unmarshal message text")
		}
		return ParseCQ(text), nil
	case '[':
		var segs Segments
		if err := json.Unmarshal(trimmed, &segs); err != nil {
			return nil, errors.WrapInvalid(err, "post", "ParseSegments", "unmarshal message segments")
		}
		return segs, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: message is neither string nor array", errors.ErrInvalidData),
			"post", "ParseSegments", "detect message format")
	}
}

// ParseCQ splits CQ code text into segments. Malformed codes are kept as text.
func ParseCQ(s string) Segments {
	var segs Segments
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			segs = append(segs, Text(unescapeText(text.String())))
			text.Reset()
		}
	}

	for len(s) > 0 {
		start := strings.Index(s, "[CQ:")
		if start < 0 {
			text.WriteString(s)
			break
		}
		end := strings.IndexByte(s[start:], ']')
		if end < 0 {
			text.WriteString(s)
			break
		}
		end += start

		text.WriteString(s[:start])
		seg, ok := parseCode(s[start+len("[CQ:") : end])
		if !ok {
			text.WriteString(s[start : end+1])
		} else {
			flush()
			segs = append(segs, seg)
		}
		s = s[end+1:]
	}
	flush()

	return segs
}

// parseCode parses the inside of one code, e.g. "at,qq=123".
func parseCode(body string) (Segment, bool) {
	parts := strings.Split(body, ",")
	if parts[0] == "" {
		return Segment{}, false
	}

	seg := Segment{Type: parts[0], Data: make(map[string]string, len(parts)-1)}
	for _, kv := range parts[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return Segment{}, false
		}
		seg.Data[k] = unescapeParam(v)
	}
	return seg, true
}

var (
	textEscaper   = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;")
	textUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&amp;", "&")

	paramEscaper   = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;", ",", "&#44;")
	paramUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")
)

func escapeText(s string) string    { return textEscaper.Replace(s) }
func unescapeText(s string) string  { return textUnescaper.Replace(s) }
func escapeParam(s string) string   { return paramEscaper.Replace(s) }
func unescapeParam(s string) string { return paramUnescaper.Replace(s) }
