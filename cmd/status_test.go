package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SamSkjord/opentpt/internal/command"
)

type fakeStatusClient struct {
	resp *command.Response
	err  error
}

func (f *fakeStatusClient) Status(ctx context.Context) (*command.Response, error) {
	return f.resp, f.err
}

func TestRunStatus_Success(t *testing.T) {
	client := &fakeStatusClient{resp: &command.Response{Result: map[string]any{"uptime_s": 12.5}}}

	var buf bytes.Buffer
	err := runStatus(context.Background(), client, &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "uptime_s")
}

func TestRunStatus_ConnectionFailure(t *testing.T) {
	client := &fakeStatusClient{err: errors.New("dial unix: no such file or directory")}

	var buf bytes.Buffer
	err := runStatus(context.Background(), client, &buf)

	assert.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestRunStatus_RPCError(t *testing.T) {
	client := &fakeStatusClient{resp: &command.Response{Error: &command.ErrorInfo{Code: -32000, Message: "not booted"}}}

	var buf bytes.Buffer
	err := runStatus(context.Background(), client, &buf)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not booted")
}
