package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingForwarder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingForwarder) Forward(entity, id string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestLog(t *testing.T) {
	t.Run("IndicesIncrease", func(t *testing.T) {
		fwd := &recordingForwarder{}
		l := NewLog("scan", "s1", fwd, nil)
		for i := 0; i < 3; i++ {
			ev, err := l.Append(TypeLog, i)
			require.NoError(t, err)
			assert.Equal(t, i, ev.Index)
		}
		assert.Len(t, l.Since(1), 2)
		assert.Empty(t, l.Since(10))
		assert.Len(t, fwd.events, 3)
	})

	t.Run("AppendAfterClose", func(t *testing.T) {
		l := NewLog("scan", "s1", nil, nil)
		l.Close()
		l.Close()
		_, err := l.Append(TypeLog, "late")
		assert.ErrorIs(t, err, ErrClosed)
		select {
		case <-l.Done():
		default:
			t.Fatal("done channel should be closed")
		}
	})

	t.Run("ChangedWakesReaders", func(t *testing.T) {
		l := NewLog("monitor", "m1", nil, nil)
		ch := l.Changed()
		_, _ = l.Append(TypeProgress, 10)
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("changed channel not closed by append")
		}
	})
}

func TestStream(t *testing.T) {
	t.Run("ResumeAndSingleDone", func(t *testing.T) {
		l := NewLog("scan", "s1", nil, nil)
		_, _ = l.Append(TypeLog, "a")
		_, _ = l.Append(TypeProgress, 10)

		var got []Event
		errCh := make(chan error, 1)
		go func() {
			errCh <- l.Stream(context.Background(), 1, func(ev Event) error {
				got = append(got, ev)
				return nil
			})
		}()

		time.Sleep(20 * time.Millisecond)
		_, _ = l.Append(TypeCompleted, map[string]int{"total_findings": 2})
		l.Close()

		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("stream did not finish")
		}

		require.Len(t, got, 3)
		assert.Equal(t, TypeProgress, got[0].Type)
		assert.Equal(t, 1, got[0].Index)
		assert.Equal(t, TypeCompleted, got[1].Type)
		assert.Equal(t, TypeDone, got[2].Type)
	})

	t.Run("ClosedLogEmitsDoneImmediately", func(t *testing.T) {
		l := NewLog("scan", "s1", nil, nil)
		_, _ = l.Append(TypeError, "boom")
		l.Close()

		var types []string
		err := l.Stream(context.Background(), 0, func(ev Event) error {
			types = append(types, ev.Type)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{TypeError, TypeDone}, types)
	})

	t.Run("ContextCancel", func(t *testing.T) {
		l := NewLog("scan", "s1", nil, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := l.Stream(ctx, 0, func(Event) error { return nil })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("SendError", func(t *testing.T) {
		l := NewLog("scan", "s1", nil, nil)
		_, _ = l.Append(TypeLog, "a")
		boom := errors.New("client gone")
		err := l.Stream(context.Background(), 0, func(Event) error { return boom })
		assert.ErrorIs(t, err, boom)
	})
}
