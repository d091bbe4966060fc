package push

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/pedrohsa/wainbox/internal/bus"
	"github.com/pedrohsa/wainbox/internal/status"
	"go.uber.org/zap"
)

// degradedAfter is the number of consecutive failed dials before the
// channel reports Degraded and the inbox falls back to polling only.
const degradedAfter = 3

// Client maintains the persistent push connection to the platform and
// publishes normalized events on the bus. The server delivers events
// at-least-once, possibly duplicated and out of order; dedup is the
// reconciler's job, not ours.
type Client struct {
	url     string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewClient creates a push client for the given websocket URL.
func NewClient(url string, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Client {
	return &Client{
		url:     url,
		bus:     b,
		machine: m,
		logger:  logger,
	}
}

// Start launches the connect/read loop.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop terminates the loop and waits for it to exit.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry forever

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		_ = c.machine.Transition(status.Connecting)

		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			failures++
			c.logger.Warn("push dial failed", zap.Error(err), zap.Int("failures", failures))
			if failures >= degradedAfter {
				_ = c.machine.Transition(status.Degraded)
			} else {
				_ = c.machine.Transition(status.Reconnecting)
			}
			if !c.sleep(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}

		failures = 0
		bo.Reset()
		_ = c.machine.Transition(status.Live)
		c.logger.Info("push channel connected")

		c.readLoop(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "")

		if ctx.Err() != nil {
			return
		}
		_ = c.machine.Transition(status.Reconnecting)
		c.logger.Warn("push channel disconnected, reconnecting")
		if !c.sleep(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		handleFrame(data, c.bus, c.logger)
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
