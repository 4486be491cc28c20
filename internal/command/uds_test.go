package command

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDSServerClient_StatusRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "opentpt.sock")
	report := StatusReport{ActivePage: "lap", Handlers: []HandlerStatus{{Name: "gps", State: "running", UpdateRateHz: 10}}}
	handler := NewCommandHandler(fakeStatusProvider{report}, fakeReloader{})

	server := NewUDSServer(sock, handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Start(ctx)
	waitForSocket(t, sock)

	client := NewUDSClient(sock, time.Second)
	resp, err := client.Call(context.Background(), "status", nil)
	require.NoError(t, err)
	assert.Nil(t, resp.Error)
}

func TestUDSServerClient_UnknownMethod(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "opentpt.sock")
	handler := NewCommandHandler(fakeStatusProvider{}, fakeReloader{})

	server := NewUDSServer(sock, handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Start(ctx)
	waitForSocket(t, sock)

	client := NewUDSClient(sock, time.Second)
	resp, err := client.Call(context.Background(), "nope", nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := NewUDSClient(path, 50*time.Millisecond).Call(context.Background(), "ping", nil); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never became ready", path)
}
