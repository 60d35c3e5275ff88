package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/capitalize-ai/ragchat/internal/model"
)

// Event is one decoded server-sent event.
type Event struct {
	Name string
	Data string
}

// Text returns the event payload as text. Message frames carry the delta in
// a typed object; every other event carries a JSON value.
func (e Event) Text() (string, error) {
	if e.Name == model.EventMessage {
		var frame model.MessageFrame
		if err := json.Unmarshal([]byte(e.Data), &frame); err != nil {
			return "", fmt.Errorf("decode message frame: %w", err)
		}
		return frame.Data, nil
	}
	var s string
	if err := json.Unmarshal([]byte(e.Data), &s); err != nil {
		return "", fmt.Errorf("decode %s payload: %w", e.Name, err)
	}
	return s, nil
}

// Decoder reads events from an event stream.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Decoder{scanner: scanner}
}

// Next returns the next event, or io.EOF when the stream ends cleanly.
func (d *Decoder) Next() (Event, error) {
	ev := Event{Name: model.EventMessage}
	var data []string
	seen := false

	for d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")
		if line == "" {
			if !seen {
				continue
			}
			ev.Data = strings.Join(data, "\n")
			return ev, nil
		}
		seen = true

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		case "":
			// comment line
		}
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	if seen {
		return Event{}, errors.New("event stream truncated mid-frame")
	}
	return Event{}, io.EOF
}
