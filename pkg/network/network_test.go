package network

import (
	"bytes"
	"testing"
	"time"
)

func TestRequestReplyRoundTrip(t *testing.T) {
	server := NewServer("test", "127.0.0.1:0", HandlerFunc(func(data []byte) []byte {
		return append([]byte("echo:"), data...)
	}))
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer server.Stop()

	client := NewClient(2 * time.Second)
	reply, err := client.SendReceive(server.Addr().String(), []byte("hello"))
	if err != nil {
		t.Fatalf("SendReceive failed: %v", err)
	}
	if !bytes.Equal(reply, []byte("echo:hello")) {
		t.Errorf("Unexpected reply: %q", reply)
	}
}

func TestSequentialRoundsOnOneServer(t *testing.T) {
	server := NewServer("test", "127.0.0.1:0", HandlerFunc(func(data []byte) []byte {
		return data
	}))
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer server.Stop()

	client := NewClient(2 * time.Second)
	for _, payload := range []string{"one", "two", "three"} {
		reply, err := client.SendReceive(server.Addr().String(), []byte(payload))
		if err != nil {
			t.Fatalf("round %q failed: %v", payload, err)
		}
		if string(reply) != payload {
			t.Errorf("Expected %q, got %q", payload, reply)
		}
	}
}

func TestClientDialFailure(t *testing.T) {
	client := NewClient(500 * time.Millisecond)
	if _, err := client.SendReceive("127.0.0.1:1", []byte("x")); err == nil {
		t.Error("Expected an error dialing a closed port")
	}
}

func TestLargeFrameRejected(t *testing.T) {
	server := NewServer("test", "127.0.0.1:0", HandlerFunc(func(data []byte) []byte {
		return data
	}))
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer server.Stop()

	client := NewClient(2 * time.Second)
	oversized := make([]byte, maxFrameSize+1)
	if _, err := client.SendReceive(server.Addr().String(), oversized); err == nil {
		t.Error("Oversized frames must be rejected")
	}
}

func TestServerPort(t *testing.T) {
	server := NewServer("test", "127.0.0.1:0", HandlerFunc(func(data []byte) []byte {
		return data
	}))
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer server.Stop()

	if server.Port() <= 0 {
		t.Errorf("Expected a bound port, got %d", server.Port())
	}
}
