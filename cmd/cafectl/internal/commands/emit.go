package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/internal/app"
	"github.com/appetiteclub/cafesync/pkg"
	"github.com/appetiteclub/cafesync/pkg/event"
)

// Emit publishes one push event on NATS, for exercising a service running
// with the nats transport.
func Emit(ctx context.Context, config *apt.Config, logger apt.Logger, out io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: emit <event> <json>")
	}

	subject, msg, err := BuildEnvelope(config.GetStringOrDef("nats.subject", event.DefaultSubject), args[0], args[1])
	if err != nil {
		return err
	}

	natsURL := config.GetStringOrDef("nats.url", app.DefaultNATSURL)
	pub, err := pkg.NewNATSPublisher(natsURL)
	if err != nil {
		return err
	}
	defer pub.Close()

	if err := pub.Publish(ctx, subject, msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	logger.Debug("event published", "subject", subject, "event", args[0])
	fmt.Fprintf(out, "Published %s on %s\n", args[0], subject)
	return nil
}

// BuildEnvelope validates the event and returns the subject and encoded
// envelope. A wildcard subject gets the event name as its last token.
func BuildEnvelope(subject, name, data string) (string, []byte, error) {
	if _, ok := event.KindFor(name); !ok {
		return "", nil, fmt.Errorf("unknown event %q", name)
	}
	if !json.Valid([]byte(data)) {
		return "", nil, fmt.Errorf("event data is not valid JSON")
	}

	if strings.HasSuffix(subject, ">") || strings.HasSuffix(subject, "*") {
		subject = subject[:len(subject)-1] + name
	}

	msg, err := json.Marshal(event.Envelope{Event: name, Data: json.RawMessage(data)})
	if err != nil {
		return "", nil, err
	}
	return subject, msg, nil
}
