package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const defaultRequestTimeout = 2 * time.Second

// Send delivers one request to a transmitter's control endpoint and waits
// for the reply. Without a ctx deadline it waits two seconds.
func Send(ctx context.Context, addr string, req Request) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return Reply{}, fmt.Errorf("control: dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	conn.SetDeadline(deadline)

	data, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("control: marshal request: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return Reply{}, fmt.Errorf("control: write: %w", err)
	}

	buf := make([]byte, maxMessageSize)
	n, err := conn.Read(buf)
	if err != nil {
		return Reply{}, fmt.Errorf("control: read reply: %w", err)
	}

	var reply Reply
	if err := json.Unmarshal(buf[:n], &reply); err != nil {
		return Reply{}, fmt.Errorf("control: decode reply: %w", err)
	}
	if reply.Type == TypeError {
		return reply, fmt.Errorf("control: %s", reply.Error)
	}
	return reply, nil
}
