// Package email is the SMTP delivery transport: a small pool of relay
// connections behind a rate limiter.
package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/models"
)

// ImplicitTLSPort selects SMTPS instead of opportunistic STARTTLS.
const ImplicitTLSPort = 465

// ErrTransportClosed is returned by Send once Close has been called.
var ErrTransportClosed = errors.New("smtp transport closed")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// Delay is the throttle window: at most RateLimit messages are
	// released per Delay.
	Delay     time.Duration
	RateLimit int

	MaxConnections int
	MaxMessages    int
}

func (c Config) withDefaults() Config {
	if c.RateLimit <= 0 {
		c.RateLimit = 3
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 3
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 50
	}
	return c
}

// Secure reports whether the port calls for implicit TLS.
func Secure(port int) bool {
	return port == ImplicitTLSPort
}

type conn struct {
	sc   gomail.SendCloser
	sent int
}

type Transport struct {
	cfg     Config
	dial    func() (gomail.SendCloser, error)
	limiter *rate.Limiter

	slots chan struct{}
	idle  chan *conn

	mu     sync.Mutex
	closed bool
}

// Open prepares a transport for cfg. No connection is made until the
// first Send or Verify.
func Open(cfg Config) *Transport {
	cfg = cfg.withDefaults()

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = Secure(cfg.Port)

	return newTransport(cfg, d.Dial)
}

func newTransport(cfg Config, dial func() (gomail.SendCloser, error)) *Transport {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Limit(float64(cfg.RateLimit) / cfg.Delay.Seconds())
	}

	return &Transport{
		cfg:     cfg,
		dial:    dial,
		limiter: rate.NewLimiter(limit, cfg.RateLimit),
		slots:   make(chan struct{}, cfg.MaxConnections),
		idle:    make(chan *conn, cfg.MaxConnections),
	}
}

// Verify dials the relay, authenticates and hangs up.
func (t *Transport) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sc, err := t.dial()
	if err != nil {
		return fmt.Errorf("%w: %s:%d: %w", errs.ErrTransport, t.cfg.Host, t.cfg.Port, err)
	}
	return sc.Close()
}

// Send delivers one message over a pooled connection. A connection that
// fails a send, or reaches MaxMessages, is closed rather than reused.
func (t *Transport) Send(ctx context.Context, msg *models.Message) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	c, err := t.acquire(ctx)
	if err != nil {
		return err
	}

	err = gomail.Send(c.sc, Build(msg))
	c.sent++
	t.release(c, err != nil)

	if err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// Close hangs up every idle connection. Connections in use are closed
// when they are released.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var errList []error
	for {
		select {
		case c := <-t.idle:
			if err := c.sc.Close(); err != nil {
				errList = append(errList, err)
			}
			<-t.slots
		default:
			return errors.Join(errList...)
		}
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) acquire(ctx context.Context) (*conn, error) {
	select {
	case c := <-t.idle:
		return c, nil
	default:
	}

	select {
	case c := <-t.idle:
		return c, nil
	case t.slots <- struct{}{}:
		sc, err := t.dial()
		if err != nil {
			<-t.slots
			return nil, fmt.Errorf("%w: %s:%d: %w", errs.ErrTransport, t.cfg.Host, t.cfg.Port, err)
		}
		return &conn{sc: sc}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) release(c *conn, broken bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if broken || t.closed || c.sent >= t.cfg.MaxMessages {
		c.sc.Close()
		<-t.slots
		return
	}
	t.idle <- c
}
