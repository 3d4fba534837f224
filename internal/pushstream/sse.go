package pushstream

import (
	"bufio"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/appetiteclub/cafesync/pkg/event"
)

const maxFrameSize = 1 << 20

// frame is one dispatched server-sent event.
type frame struct {
	Event string
	Data  string
	ID    string
}

// readFrames parses an event stream and calls dispatch for every complete
// frame. retry calls onRetry. It returns when r is exhausted or fails.
func readFrames(r io.Reader, dispatch func(frame), onRetry func(time.Duration)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	var (
		name    string
		id      string
		data    strings.Builder
		hasData bool
	)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if line == "" {
			if hasData {
				if name == "" {
					name = "message"
				}
				dispatch(frame{Event: name, Data: strings.TrimSuffix(data.String(), "\n"), ID: id})
			}
			name = ""
			data.Reset()
			hasData = false
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "event":
			name = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			id = value
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms > 0 && onRetry != nil {
				onRetry(time.Duration(ms) * time.Millisecond)
			}
		}
	}

	return scanner.Err()
}

// toEvent maps a frame to a typed event. Generic "message" frames carrying an
// {"event","data"} envelope are unwrapped.
func toEvent(f frame, now time.Time) (event.Event, bool) {
	name := f.Event
	payload := f.Data

	if name == "message" {
		var env event.Envelope
		if err := json.Unmarshal([]byte(payload), &env); err == nil && env.Event != "" {
			name = env.Event
			payload = string(env.Data)
		}
	}

	kind, ok := event.KindFor(name)
	if !ok {
		return event.Event{}, false
	}
	return event.Event{
		Kind:       kind,
		Name:       name,
		Data:       json.RawMessage(payload),
		ReceivedAt: now,
	}, true
}
