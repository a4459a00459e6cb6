package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineStagesRunInOrder(t *testing.T) {
	var order []string
	var first atomic.Int32
	p := New("test", 0,
		Task{Name: "b", Stage: 2, Run: func(context.Context) error {
			order = append(order, "b")
			return nil
		}},
		Task{Name: "a", Stage: 1, Run: func(context.Context) error {
			first.Add(1)
			order = append(order, "a")
			return nil
		}},
	)
	warns, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.EqualValues(t, 1, first.Load())
}

func TestPipelineFailureIsolation(t *testing.T) {
	var ran atomic.Int32
	p := New("sod", 3,
		Task{Name: "market", Run: func(context.Context) error { return errors.New("timeout") }},
		Task{Name: "charts", Run: func(context.Context) error { panic("bad image") }},
		Task{Name: "notes", Run: func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			ran.Add(1)
			return ctx.Err()
		}},
	)
	warns, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, warns, 2)
	assert.EqualValues(t, 1, ran.Load(), "sibling must not be cancelled")
}

func TestPipelineCriticalStopsLaterStages(t *testing.T) {
	later := false
	boom := errors.New("db down")
	p := New("intraday", 1,
		Task{Name: "load", Stage: 0, Critical: true, Run: func(context.Context) error { return boom }},
		Task{Name: "decide", Stage: 1, Run: func(context.Context) error { later = true; return nil }},
	)
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "load", te.Task)
	assert.False(t, later)
}

func TestPipelineTaskTimeout(t *testing.T) {
	p := New("t", 1, Task{Name: "slow", Timeout: 5 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	warns, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, warns, 1)
	assert.ErrorIs(t, warns[0], context.DeadlineExceeded)
}
