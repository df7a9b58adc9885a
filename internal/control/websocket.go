package control

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/breeze-rmm/audlink/internal/health"
	"github.com/breeze-rmm/audlink/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFactor   = 0.3
)

// WSConfig holds the WebSocket control client configuration.
type WSConfig struct {
	URL           string
	TransmitterID string
	Token         string
	Health        *health.Monitor
}

// WSClient keeps a WebSocket open to a controller and applies the requests
// it sends, the same ones the UDP listener accepts. It reconnects with
// jittered exponential backoff.
type WSClient struct {
	config   WSConfig
	handler  Handler
	conn     *websocket.Conn
	connMu   sync.RWMutex
	done     chan struct{}
	sendChan chan []byte
	stopOnce sync.Once

	backoff time.Duration
}

func NewWSClient(cfg WSConfig, h Handler) *WSClient {
	return &WSClient{
		config:   cfg,
		handler:  h,
		done:     make(chan struct{}),
		sendChan: make(chan []byte, 64),
		backoff:  initialBackoff,
	}
}

// Run connects and serves until Stop is called.
func (c *WSClient) Run() {
	backoff := c.backoff

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.connect(); err != nil {
			log.Warn("control websocket connection failed", logging.KeyError, err)
			c.report(health.Degraded, err.Error())

			jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
			sleep := backoff + jitter
			if sleep < 0 {
				sleep = backoff
			}

			log.Info("retrying", "delay", sleep)
			select {
			case <-c.done:
				return
			case <-time.After(sleep):
			}

			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = c.backoff
		c.report(health.Healthy, "")

		pumpDone := make(chan struct{})
		go c.writePump(pumpDone)
		c.readPump()
		close(pumpDone)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
	}
}

// Stop closes the connection and ends Run.
func (c *WSClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		log.Info("control websocket stopped")
	})
}

func (c *WSClient) report(status health.Status, msg string) {
	if c.config.Health != nil {
		c.config.Health.Update(health.ComponentControl, status, msg)
	}
}

func (c *WSClient) connect() error {
	wsURL, err := c.buildURL()
	if err != nil {
		return fmt.Errorf("failed to build WebSocket URL: %w", err)
	}

	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsURL, header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.connMu.Lock()
	select {
	case <-c.done:
		c.connMu.Unlock()
		conn.Close()
		return fmt.Errorf("client is stopped")
	default:
	}
	c.conn = conn
	c.connMu.Unlock()

	log.Info("control websocket connected", "server", c.config.URL)
	return nil
}

// buildURL maps http(s) to ws(s) and adds the transmitter id as a query
// parameter.
func (c *WSClient) buildURL() (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if c.config.TransmitterID != "" {
		q := u.Query()
		q.Set("transmitter", c.config.TransmitterID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *WSClient) readPump() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("control websocket read error", logging.KeyError, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		reply := Dispatch(c.handler, message)
		if reply.Type == TypeError {
			log.Info("control request rejected", logging.KeyError, reply.Error)
		}
		if err := c.send(reply); err != nil {
			log.Warn("failed to queue control reply", logging.KeyError, err)
		}
	}
}

func (c *WSClient) send(reply Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("client is stopped")
	default:
		return fmt.Errorf("send channel is full")
	}
}

func (c *WSClient) writePump(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.done:
			return

		case message := <-c.sendChan:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("control websocket write error", logging.KeyError, err)
				return
			}

		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
