// Package relay forwards bus notifications to a socket.io endpoint so an
// external UI can follow archive and build changes.
package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/notify"
)

// DefaultEvent is the socket.io event name notifications are emitted as.
const DefaultEvent = "mathgrid"

// DefaultConnectTimeout bounds Dial when Config leaves it zero.
const DefaultConnectTimeout = 15 * time.Second

// Config describes the endpoint.
type Config struct {
	URL                string
	Namespace          string
	Event              string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

type emitter interface {
	emit(event string, payload any)
	close()
	id() string
}

type socketEmitter struct{ io *socket.Socket }

func (s socketEmitter) emit(event string, payload any) { s.io.Emit(event, payload) }
func (s socketEmitter) close()                         { s.io.Disconnect() }
func (s socketEmitter) id() string                     { return fmt.Sprint(s.io.Id()) }

// Relay emits every notification it reads as one socket.io event.
type Relay struct {
	out   emitter
	event string
}

// Dial connects to cfg.URL and waits for the connection to be accepted.
func Dial(ctx context.Context, cfg Config) (*Relay, error) {
	logger := ctxlog.FromContext(ctx).With("url", cfg.URL)
	logger.Info("Relay: Connecting.")

	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("relay URL %q needs a scheme and host", cfg.URL)
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "/"
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	opts := socket.DefaultOptions()
	if parsed.Path != "" {
		opts.SetPath(parsed.Path)
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), opts)
	io := manager.Socket(namespace, opts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}

	r := newRelay(socketEmitter{io: io}, cfg.Event)
	logger.Info("Relay: Connected.", "sid", r.out.id())
	return r, nil
}

func newRelay(out emitter, event string) *Relay {
	if event == "" {
		event = DefaultEvent
	}
	return &Relay{out: out, event: event}
}

// Run forwards events from sub until ctx is done or sub is closed. It
// returns nil once sub is drained after a close.
func (r *Relay) Run(ctx context.Context, sub *notify.Subscription) error {
	logger := ctxlog.FromContext(ctx)
	defer func() {
		if n := sub.Dropped(); n > 0 {
			logger.Warn("Relay: Notifications dropped.", "count", n)
		}
	}()
	for {
		e, err := sub.Read(ctx)
		if errors.Is(err, notify.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		logger.Debug("Relay: Forwarding event.", "kind", e.Kind, "archive", e.Archive, "path", e.Path)
		r.out.emit(r.event, e)
	}
}

// Close disconnects from the endpoint.
func (r *Relay) Close() {
	r.out.close()
}
