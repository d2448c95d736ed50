package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/go-supertonic/internal/config"
	"github.com/example/go-supertonic/internal/server"
)

func TestStart_LifecycleHealthAndShutdown(t *testing.T) {
	// Find an available port.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := ln.Addr().String()
	ln.Close() // free it for the server

	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = addr

	s := server.New(cfg, &stubSynthesizer{}).WithShutdownTimeout(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Start(ctx)
	}()

	// Wait for the server to be ready.
	client := &http.Client{Timeout: 2 * time.Second}

	var resp *http.Response

	for range 50 {
		resp, err = client.Get(fmt.Sprintf("http://%s/health", addr))
		if err == nil {
			break
		}

		time.Sleep(20 * time.Millisecond)
	}

	if err != nil {
		t.Fatalf("server never became ready: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d; want 200", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /health: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("status = %v; want ok", body["status"])
	}

	// Graceful shutdown.
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return within 5s of context cancel")
	}
}

func TestProbeHTTP(t *testing.T) {
	srv := httptest.NewServer(server.NewHandler(&stubSynthesizer{}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	if err := server.ProbeHTTP(addr); err != nil {
		t.Fatalf("ProbeHTTP(%q) = %v; want nil", addr, err)
	}
}

func TestProbeHTTP_Unreachable(t *testing.T) {
	if err := server.ProbeHTTP("127.0.0.1:1"); err == nil {
		t.Fatal("want error probing an address with no listener")
	}
}
