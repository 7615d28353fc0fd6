package cargo

import (
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// document is a line-oriented view of a TOML file. Mutations operate on
// whole lines at known positions, so every byte of untouched content
// (comments, blank lines, key ordering, whitespace) survives a rewrite.
// Structural understanding is limited to section headers and top-level
// keys within a section, which is all the mutator needs.
type document struct {
	lines []string
}

// span is a section's location: the header line and the half-open line
// range [start, end) of its body.
type span struct {
	header int
	start  int
	end    int
}

// parseDocument validates content as TOML and builds the line view.
// Malformed content is an error: the mutator must never edit a file it
// cannot fully parse.
func parseDocument(content []byte) (*document, error) {
	var probe map[string]any
	if err := toml.Unmarshal(content, &probe); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	text := strings.TrimSuffix(string(content), "\n")
	if text == "" {
		return &document{}, nil
	}
	return &document{lines: strings.Split(text, "\n")}, nil
}

// newDocument builds a document from freshly rendered content, which is
// trusted to be valid.
func newDocument(content string) *document {
	text := strings.TrimSuffix(content, "\n")
	if text == "" {
		return &document{}
	}
	return &document{lines: strings.Split(text, "\n")}
}

// render serializes the document back to file content.
func (d *document) render() string {
	if len(d.lines) == 0 {
		return ""
	}
	return strings.Join(d.lines, "\n") + "\n"
}

// sectionName extracts the normalized section name from a header line,
// or ok=false when the line is not a section header. Quoted dotted parts
// ([target."x86_64-unknown-linux-gnu"]) normalize to their bare form.
func sectionName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.ReplaceAll(name, `'`, "")
	return strings.TrimSpace(name), true
}

// findSection locates the named section. The body runs to the next
// section header or end of file.
func (d *document) findSection(name string) (span, bool) {
	for i, line := range d.lines {
		got, ok := sectionName(line)
		if !ok || got != name {
			continue
		}

		end := len(d.lines)
		for j := i + 1; j < len(d.lines); j++ {
			if _, isHeader := sectionName(d.lines[j]); isHeader {
				end = j
				break
			}
		}
		return span{header: i, start: i + 1, end: end}, true
	}
	return span{}, false
}

// keyValue looks up a top-level key inside the section span. The returned
// value has surrounding whitespace and string quotes stripped.
func (d *document) keyValue(s span, key string) (string, bool) {
	for i := s.start; i < s.end; i++ {
		line := strings.TrimSpace(d.lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, found := strings.Cut(line, "=")
		if !found || strings.TrimSpace(k) != key {
			continue
		}
		value := stripInlineComment(strings.TrimSpace(v))
		value = strings.Trim(value, `"'`)
		return value, true
	}
	return "", false
}

// stripInlineComment drops a trailing comment from a value, ignoring `#`
// characters inside quoted strings.
func stripInlineComment(s string) string {
	var quote byte
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return strings.TrimSpace(s[:i])
		}
	}
	return s
}

// insertKey adds a key line immediately after the section header,
// leaving every other line untouched.
func (d *document) insertKey(s span, line string) {
	at := s.header + 1
	lines := make([]string, 0, len(d.lines)+1)
	lines = append(lines, d.lines[:at]...)
	lines = append(lines, line)
	lines = append(lines, d.lines[at:]...)
	d.lines = lines
}

// appendSection adds a new section at the end of the document, separated
// from existing content by a blank line.
func (d *document) appendSection(header string, body ...string) {
	if len(d.lines) > 0 && strings.TrimSpace(d.lines[len(d.lines)-1]) != "" {
		d.lines = append(d.lines, "")
	}
	d.lines = append(d.lines, header)
	d.lines = append(d.lines, body...)
}
