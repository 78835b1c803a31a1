package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-doc-approvals/internal/service"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) SweepReplacements(context.Context) (service.SweepReport, error) {
	f.calls.Add(1)
	return service.SweepReport{Deactivated: 1}, f.err
}

func TestRegisterSweep(t *testing.T) {
	testCases := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{name: "default", schedule: ""},
		{name: "descriptor", schedule: "@hourly"},
		{name: "five fields", schedule: "5 0 * * *"},
		{name: "invalid", schedule: "every day", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(&fakeSweeper{}, nil, logger.Nop())
			err := s.RegisterSweep(tc.schedule)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.cron.Entries(), 1)
		})
	}
}

func TestRegisterSweepReplacesEntry(t *testing.T) {
	s := New(&fakeSweeper{}, nil, logger.Nop())
	require.NoError(t, s.RegisterSweep("@daily"))
	require.NoError(t, s.RegisterSweep("@hourly"))
	assert.Len(t, s.cron.Entries(), 1)
}

func TestRunSweep(t *testing.T) {
	ok := &fakeSweeper{}
	New(ok, nil, logger.Nop()).RunSweep(context.Background())
	assert.Equal(t, int32(1), ok.calls.Load())

	failing := &fakeSweeper{err: errors.New("db down")}
	New(failing, nil, logger.Nop()).RunSweep(context.Background())
	assert.Equal(t, int32(1), failing.calls.Load())
}

func TestStartStop(t *testing.T) {
	s := New(&fakeSweeper{}, nil, logger.Nop())
	require.NoError(t, s.RegisterSweep(""))
	s.Start()
	s.Stop(context.Background())
}
