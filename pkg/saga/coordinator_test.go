package saga

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitSkipsCompensation(t *testing.T) {
	c := New()
	ran := false
	c.AddStep("step1", func() error { ran = true; return nil })
	c.Commit()
	require.NoError(t, c.Compensate())
	assert.False(t, ran, "compensation must not run after Commit")
}

func TestCompensateRunsInReverseOrder(t *testing.T) {
	c := New()
	var order []string
	c.AddStep("first", func() error { order = append(order, "first"); return nil })
	c.AddStep("second", func() error { order = append(order, "second"); return nil })
	c.AddStep("third", func() error { order = append(order, "third"); return nil })

	require.NoError(t, c.Compensate())
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestCompensateAccumulatesErrorsAndRunsAll(t *testing.T) {
	c := New()
	ranSecond := false
	c.AddStep("failing", func() error { return errors.New("boom") })
	c.AddStep("ok", func() error { ranSecond = true; return nil })

	err := c.Compensate()
	require.Error(t, err)
	assert.True(t, ranSecond, "one failing compensation must not block the others")
	assert.Contains(t, err.Error(), "boom")
}

func TestCompensateRecoversPanic(t *testing.T) {
	c := New()
	ranAfter := false
	c.AddStep("panics", func() error { panic("unexpected") })
	c.AddStep("after", func() error { ranAfter = true; return nil })

	err := c.Compensate()
	require.Error(t, err)
	assert.True(t, ranAfter)
}

func TestCompensateIsIdempotent(t *testing.T) {
	c := New()
	calls := 0
	c.AddStep("once", func() error { calls++; return nil })

	require.NoError(t, c.Compensate())
	require.NoError(t, c.Compensate())
	assert.Equal(t, 1, calls)
}

func TestCaptureOldValueRestoresOrDeletes(t *testing.T) {
	var restored interface{}
	restoreFn := func(v interface{}) error { restored = v; return nil }
	deleted := false
	deleteFn := func() error { deleted = true; return nil }

	withOld := CaptureOldValue("prior", true, restoreFn, deleteFn)
	require.NoError(t, withOld())
	assert.Equal(t, "prior", restored)
	assert.False(t, deleted)

	restored = nil
	withoutOld := CaptureOldValue(nil, false, restoreFn, deleteFn)
	require.NoError(t, withoutOld())
	assert.Nil(t, restored)
	assert.True(t, deleted)
}
