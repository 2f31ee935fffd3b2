package network

import (
	"fmt"
	"net"
	"time"
)

// Client dials peers for one request/reply round per call. Every socket is
// opened for a single round trip and closed on all exit paths.
type Client struct {
	timeout time.Duration
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		timeout: timeout,
	}
}

// SendReceive writes one frame to address and waits for the reply frame.
func (c *Client) SendReceive(address string, data []byte) ([]byte, error) {
	return c.sendReceive(address, data, c.timeout)
}

// SendReceiveTimeout is SendReceive with a per-call deadline.
func (c *Client) SendReceiveTimeout(address string, data []byte, timeout time.Duration) ([]byte, error) {
	return c.sendReceive(address, data, timeout)
}

func (c *Client) sendReceive(address string, data []byte, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := writeFrame(conn, data); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	reply, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply from %s: %w", address, err)
	}
	return reply, nil
}
