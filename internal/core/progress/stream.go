// Package progress decodes the framed JSON status stream the engine returns
// from image build and pull calls.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/docker/docker/pkg/jsonmessage"
)

// Event is one decoded status object.
type Event = jsonmessage.JSONMessage

// =============================================================================
// Errors
// =============================================================================

// StreamOutputError is an error reported by the engine inside the stream.
type StreamOutputError struct {
	Code    int
	Message string
}

func (e *StreamOutputError) Error() string {
	return e.Message
}

// StreamParseError means the stream carried bytes that are not JSON.
type StreamParseError struct {
	Offset int64
	Err    error
}

func (e *StreamParseError) Error() string {
	return fmt.Sprintf("malformed progress stream at byte %d: %v", e.Offset, e.Err)
}

func (e *StreamParseError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Decoder
// =============================================================================

// Decoder yields one Event per JSON object read from the stream. Objects may
// be split across reads or share one; incomplete input waits for more bytes.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Next returns the next event, or io.EOF at the end of the stream.
func (d *Decoder) Next() (*Event, error) {
	var ev Event
	if err := d.dec.Decode(&ev); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &StreamParseError{Offset: d.dec.InputOffset(), Err: err}
	}
	return &ev, nil
}

// Stream decodes every event of r. Each event is rendered to out when out is
// non-nil. It stops at the first event carrying an error and returns a
// *StreamOutputError together with the events seen so far.
func Stream(r io.Reader, out io.Writer) ([]Event, error) {
	var events []Event
	dec := NewDecoder(r)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, *ev)

		if out != nil {
			render(out, ev)
		}
		if serr := outputError(ev); serr != nil {
			return events, serr
		}
	}
}

func outputError(ev *Event) *StreamOutputError {
	if ev.Error != nil {
		return &StreamOutputError{Code: ev.Error.Code, Message: ev.Error.Message}
	}
	if ev.ErrorMessage != "" {
		return &StreamOutputError{Message: ev.ErrorMessage}
	}
	return nil
}

func render(out io.Writer, ev *Event) {
	if ev.Stream != "" {
		fmt.Fprint(out, ev.Stream)
		return
	}
	if ev.Status == "" {
		return
	}
	line := ev.Status
	if ev.ID != "" {
		line = ev.ID + ": " + line
	}
	if ev.Progress != nil {
		if p := ev.Progress.String(); p != "" {
			line += " " + p
		}
	}
	fmt.Fprintln(out, line)
}

// =============================================================================
// Extractors
// =============================================================================

var builtPattern = regexp.MustCompile(`Successfully built ([0-9a-f]+)`)

// ImageIDFromBuild returns the image id announced by a finished build.
// Classic builders print "Successfully built <id>"; newer daemons also send
// an aux record carrying the full id.
func ImageIDFromBuild(events []Event) (string, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if m := builtPattern.FindStringSubmatch(events[i].Stream); m != nil {
			return m[1], true
		}
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Aux == nil {
			continue
		}
		var aux struct {
			ID string `json:"ID"`
		}
		if err := json.Unmarshal(*events[i].Aux, &aux); err == nil && aux.ID != "" {
			return aux.ID, true
		}
	}
	return "", false
}

// DigestFromPull returns the content digest reported by a finished pull.
//
// Example:
//
//	status "Digest: sha256:abc" // returns "sha256:abc"
func DigestFromPull(events []Event) (string, bool) {
	for _, ev := range events {
		if !strings.Contains(ev.Status, "Digest") {
			continue
		}
		if _, digest, ok := strings.Cut(ev.Status, ":"); ok {
			return strings.TrimSpace(digest), true
		}
	}
	return "", false
}
