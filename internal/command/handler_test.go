package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStatusProvider struct{ report StatusReport }

func (f fakeStatusProvider) Status() StatusReport { return f.report }

type fakeReloader struct{ err error }

func (f fakeReloader) Reload() error { return f.err }

func TestCommandHandler_Status(t *testing.T) {
	report := StatusReport{ActivePage: "telemetry", Handlers: []HandlerStatus{{Name: "gps", State: "running"}}}
	h := NewCommandHandler(fakeStatusProvider{report}, fakeReloader{})

	resp := h.Handle(context.Background(), Command{Method: "status", ID: "1"})

	assert.Nil(t, resp.Error)
	assert.Equal(t, report, resp.Result)
}

func TestCommandHandler_Reload(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "success", err: nil, wantErr: false},
		{name: "failure", err: assert.AnError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCommandHandler(fakeStatusProvider{}, fakeReloader{err: tt.err})
			resp := h.Handle(context.Background(), Command{Method: "reload", ID: "2"})
			if tt.wantErr {
				assert.NotNil(t, resp.Error)
			} else {
				assert.Nil(t, resp.Error)
				assert.Equal(t, "reloaded", resp.Result)
			}
		})
	}
}

func TestCommandHandler_UnknownMethod(t *testing.T) {
	h := NewCommandHandler(fakeStatusProvider{}, fakeReloader{})
	resp := h.Handle(context.Background(), Command{Method: "bogus", ID: "3"})
	assert.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestCommandHandler_MissingProviders(t *testing.T) {
	h := NewCommandHandler(nil, nil)

	statusResp := h.Handle(context.Background(), Command{Method: "status", ID: "4"})
	assert.NotNil(t, statusResp.Error)

	reloadResp := h.Handle(context.Background(), Command{Method: "reload", ID: "5"})
	assert.NotNil(t, reloadResp.Error)
}
