package tcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
)

// startServer starts a tcp server on a random port and returns its address
func startServer(t *testing.T, handler transport.ServerHandleFunc) string {
	t.Helper()

	server := NewTCPServerTransport()
	server.RegisterHandler(handler)
	addr, err := server.Bind(common.ServerTransportConfig{Endpoint: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("Failed to bind server: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- server.Serve() }()

	t.Cleanup(func() {
		if err := server.Close(); err != nil {
			t.Errorf("Failed to close server: %v", err)
		}
		if err := <-done; err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	})
	return addr
}

func newClient(t *testing.T, config common.ClientConfig) transport.IRPCClientTransport {
	t.Helper()

	client := NewTCPClientTransport()
	if err := client.Connect(config); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func echo(req []byte) []byte {
	return append([]byte("echo:"), req...)
}

func TestRoundTrip(t *testing.T) {
	addr := startServer(t, echo)
	client := newClient(t, common.ClientConfig{Endpoints: []string{addr}})

	resp, err := client.Send(context.Background(), addr, []byte("hello"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp) != "echo:hello" {
		t.Errorf("Expected echo:hello, got %q", resp)
	}
}

func TestLargePayload(t *testing.T) {
	addr := startServer(t, echo)
	client := newClient(t, common.ClientConfig{})

	payload := bytes.Repeat([]byte{0xab}, 256*1024)
	resp, err := client.Send(context.Background(), addr, payload)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !bytes.Equal(resp, echo(payload)) {
		t.Errorf("Response of %d bytes doesn't match", len(resp))
	}
}

func TestConcurrentRequests(t *testing.T) {
	addr := startServer(t, echo)
	client := newClient(t, common.ClientConfig{
		Transport: common.ClientTransportConfig{ConnectionsPerEndpoint: 2},
	})

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := []byte(fmt.Sprintf("req-%d", i))
			resp, err := client.Send(context.Background(), addr, req)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(resp, echo(req)) {
				errs <- fmt.Errorf("request %d got response %q", i, resp)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestDroppedRequest(t *testing.T) {
	addr := startServer(t, func([]byte) []byte { return nil })
	client := newClient(t, common.ClientConfig{})

	_, err := client.Send(context.Background(), addr, []byte("ignored"))
	if !errors.Is(err, store.ErrNetwork) {
		t.Errorf("Expected network error, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	addr := startServer(t, func(req []byte) []byte {
		<-release
		return req
	})
	defer close(release)
	client := newClient(t, common.ClientConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Send(ctx, addr, []byte("slow"))
	if !errors.Is(err, store.ErrTimeout) {
		t.Errorf("Expected timeout error, got %v", err)
	}
}

func TestUnreachable(t *testing.T) {
	// Reserve a port and release it again so nothing listens on it
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	client := newClient(t, common.ClientConfig{
		Transport: common.ClientTransportConfig{RetryCount: 2},
	})

	_, err = client.Send(context.Background(), addr, []byte("nobody"))
	if !errors.Is(err, store.ErrNetwork) {
		t.Errorf("Expected network error, got %v", err)
	}
}

func TestConnectFailsWithoutEndpoint(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()

	client := NewTCPClientTransport()
	defer client.Close()
	if err := client.Connect(common.ClientConfig{Endpoints: []string{addr}}); !errors.Is(err, store.ErrNetwork) {
		t.Errorf("Expected network error, got %v", err)
	}
}

func TestReconnectAfterServerRestart(t *testing.T) {
	server := NewTCPServerTransport()
	server.RegisterHandler(echo)
	addr, err := server.Bind(common.ServerTransportConfig{Endpoint: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("Failed to bind server: %v", err)
	}
	go server.Serve()

	client := newClient(t, common.ClientConfig{
		Transport: common.ClientTransportConfig{RetryCount: 5},
	})
	if _, err := client.Send(context.Background(), addr, []byte("first")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	_ = server.Close()

	// Start a new server on the same address
	restarted := NewTCPServerTransport()
	restarted.RegisterHandler(echo)
	if _, err := restarted.Bind(common.ServerTransportConfig{Endpoint: addr}); err != nil {
		t.Skipf("Could not rebind %s: %v", addr, err)
	}
	go restarted.Serve()
	defer restarted.Close()

	resp, err := client.Send(context.Background(), addr, []byte("second"))
	if err != nil {
		t.Fatalf("Send after restart failed: %v", err)
	}
	if string(resp) != "echo:second" {
		t.Errorf("Expected echo:second, got %q", resp)
	}
}
