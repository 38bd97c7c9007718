// Package ics implements the feed-ingestion pipeline: tokenizing raw ICS
// text into property bags, normalizing date/date-time tokens into absolute
// instants, and expanding recurrence rules into concrete event instances.
//
// The parser is deliberately lenient. Third-party feeds emit all sorts of
// almost-ICS, so malformed input degrades instead of failing: a line with no
// colon never raises, and an event block is only dropped when it lacks the
// minimum the engine needs (DTSTART and SUMMARY).
package ics

import "strings"

// Property is a single ICS property: its raw value plus any semicolon
// parameters from the name part (e.g. TZID=Europe/Helsinki).
type Property struct {
	Value  string
	Params map[string]string
}

// RawEvent maps ICS property names (SUMMARY, DTSTART, RRULE, ...) to their
// parsed properties for one VEVENT block.
type RawEvent map[string]Property

// Value returns the raw value of the named property, or "" when absent.
func (e RawEvent) Value(name string) string {
	return e[name].Value
}

// Has reports whether the named property is present.
func (e RawEvent) Has(name string) bool {
	_, ok := e[name]
	return ok
}

// ParseProperty splits a logical property line into its name and Property.
// The line is split at the first colon; everything before it is the property
// name plus semicolon-delimited NAME=VALUE parameters. A line with no colon
// degrades gracefully: the whole line becomes the value, the name is empty
// and no parameters are produced.
func ParseProperty(line string) (string, Property) {
	colon := strings.Index(line, ":")
	if colon == -1 {
		return "", Property{Value: line, Params: map[string]string{}}
	}

	namePart := line[:colon]
	prop := Property{
		Value:  line[colon+1:],
		Params: map[string]string{},
	}

	parts := strings.Split(namePart, ";")
	for _, param := range parts[1:] {
		if eq := strings.Index(param, "="); eq != -1 {
			prop.Params[param[:eq]] = param[eq+1:]
		}
	}

	return parts[0], prop
}

// Parse tokenizes raw feed text into VEVENT property bags. Folded
// (continuation) lines are unfolded before property parsing. Blocks missing
// DTSTART or SUMMARY are silently dropped; nothing in the input can make
// Parse fail.
func Parse(data string) []RawEvent {
	lines := unfold(data)

	var events []RawEvent
	var current RawEvent

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "BEGIN:VEVENT":
			current = RawEvent{}

		case trimmed == "END:VEVENT":
			if current != nil && current.Has("DTSTART") && current.Has("SUMMARY") {
				events = append(events, current)
			}
			current = nil

		case current != nil:
			name, prop := ParseProperty(trimmed)
			if name == "" || prop.Value == "" {
				// Malformed or empty line inside a block: no property.
				continue
			}
			// EXDATE may legally repeat; later occurrences extend the list.
			// Every other property is last-writer-wins.
			if name == "EXDATE" {
				if prev, ok := current[name]; ok {
					prop.Value = prev.Value + "," + prop.Value
					for k, v := range prev.Params {
						if _, dup := prop.Params[k]; !dup {
							prop.Params[k] = v
						}
					}
				}
			}
			current[name] = prop
		}
	}

	return events
}

// unfold splits the input on CRLF/LF and joins continuation lines (those
// beginning with a space or tab) onto the previous logical line.
func unfold(data string) []string {
	raw := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")

	var lines []string
	for _, line := range raw {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
