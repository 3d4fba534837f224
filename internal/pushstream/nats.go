package pushstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/nats-io/nats.go"

	"github.com/appetiteclub/cafesync/pkg"
	"github.com/appetiteclub/cafesync/pkg/event"
)

// NATSSource receives push events relayed over NATS and feeds the same
// broadcast as the SSE client.
type NATSSource struct {
	*hub

	url     string
	subject string
	logger  apt.Logger

	mu        sync.Mutex
	sub       *pkg.NATSSubscriber
	onConnect []func()
}

func NewNATSSource(url, subject string, logger apt.Logger) *NATSSource {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if subject == "" {
		subject = event.DefaultSubject
	}
	return &NATSSource{
		hub:     newHub(logger),
		url:     url,
		subject: subject,
		logger:  logger,
	}
}

// OnConnect registers a callback run on the first connect and on every
// reconnect.
func (s *NATSSource) OnConnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

// Start subscribes to the relay subject. An unreachable server is not an
// error: the connection keeps retrying in the background and the
// subscription becomes active once it is established.
func (s *NATSSource) Start(ctx context.Context) error {
	sub, err := pkg.NewNATSSubscriber(s.url,
		nats.Name("ordersync"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.ConnectHandler(func(conn *nats.Conn) {
			s.logger.Info("nats connected", "url", conn.ConnectedUrl())
			s.notifyConnect()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Error("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			s.logger.Info("nats reconnected", "url", conn.ConnectedUrl())
			s.notifyConnect()
		}),
	)
	if err != nil {
		return err
	}
	sub.OnError(func(topic string, err error) {
		s.logger.Error("cannot handle relayed push event", "subject", topic, "error", err)
	})

	if err := sub.Subscribe(context.WithoutCancel(ctx), s.subject, s.handle); err != nil {
		_ = sub.Close()
		return err
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	if sub.Connected() {
		s.logger.Info("subscribed to push relay", "url", s.url, "subject", s.subject)
		s.notifyConnect()
	} else {
		s.logger.Info("push relay unreachable, retrying in background", "url", s.url, "subject", s.subject)
	}
	return nil
}

func (s *NATSSource) Stop(ctx context.Context) error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	s.closeAll()
	return err
}

func (s *NATSSource) notifyConnect() {
	s.mu.Lock()
	callbacks := append([]func(){}, s.onConnect...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// handle accepts one {"event","data"} envelope per message.
func (s *NATSSource) handle(ctx context.Context, msg []byte) error {
	var env event.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return fmt.Errorf("envelope without event name")
	}

	kind, ok := event.KindFor(env.Event)
	if !ok {
		s.logger.Debug("ignoring relayed event", "event", env.Event)
		return nil
	}

	s.broadcast(event.Event{
		Kind:       kind,
		Name:       env.Event,
		Data:       env.Data,
		ReceivedAt: time.Now(),
	})
	return nil
}
