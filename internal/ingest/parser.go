package ingest

import (
	"strings"
	"time"

	"hololog/internal/domain/content"
)

const headerDelim = "---"

// ExtractMetadata parses the header block of raw and fills missing fields
// with defaults. It never fails.
func ExtractMetadata(raw string) content.Metadata {
	return ParseMetadata(raw).WithDefaults(time.Now())
}

// ParseMetadata parses the header block of raw without applying defaults.
// Text without a well-formed block yields the zero record.
func ParseMetadata(raw string) content.Metadata {
	header, _, ok := SplitHeader(raw)
	if !ok {
		return content.Metadata{}
	}

	var m content.Metadata
	for _, line := range strings.Split(header, "\n") {
		key, value, found := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		value = unquote(strings.TrimSpace(value))

		switch key {
		case "title":
			m.Title = value
		case "date":
			m.Date = value
		case "description":
			m.Description = value
		case "tags":
			m.Tags = parseTags(value)
		}
	}
	return m
}

// StripHeader returns the body of raw with the header block removed and
// surrounding whitespace trimmed. Text without a block is returned trimmed.
func StripHeader(raw string) string {
	_, body, ok := SplitHeader(raw)
	if !ok {
		return strings.TrimSpace(normalizeNewlines(raw))
	}
	return strings.TrimSpace(body)
}

// SplitHeader locates a header block opened by a "---" line (the first
// non-blank line of raw) and closed by the next "---" line. An unterminated
// block reports ok=false.
func SplitHeader(raw string) (header, body string, ok bool) {
	norm := strings.TrimLeft(normalizeNewlines(raw), " \t\n")

	first, rest, found := strings.Cut(norm, "\n")
	if strings.TrimRight(first, " \t") != headerDelim {
		return "", "", false
	}
	if !found {
		return "", "", false
	}

	var lines []string
	for {
		line, tail, more := strings.Cut(rest, "\n")
		if strings.TrimRight(line, " \t") == headerDelim {
			return strings.Join(lines, "\n"), tail, true
		}
		if !more {
			return "", "", false
		}
		lines = append(lines, line)
		rest = tail
	}
}

// parseTags splits a bracketed list on commas. Commas inside quoted tags are
// not supported and empty elements are kept, so "[a, , b]" has three tags.
// A value without brackets is split the same way so that "tags: go, web"
// still yields two tags.
func parseTags(value string) []string {
	if len(value) >= 2 && value[0] == '[' && value[len(value)-1] == ']' {
		value = value[1 : len(value)-1]
	}
	tags := []string{}
	if strings.TrimSpace(value) == "" {
		return tags
	}
	for _, part := range strings.Split(value, ",") {
		tags = append(tags, strings.Trim(strings.TrimSpace(part), `"'`))
	}
	return tags
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
