package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartwatch/internal/uid"
)

var testID = uid.UID{Seq: 1, CreatedAt: 1, PID: 1, Host: "127.0.0.1"}

func TestNewSetsDueTime(t *testing.T) {
	now := time.Unix(1000, 0)
	tk, err := New(testID, now, 3*time.Second, time.Second, OperationFunc(func() Status { return Done }), nil)
	require.NoError(t, err)
	assert.Equal(t, now.Add(3*time.Second), tk.NextRun())
	assert.Equal(t, time.Second, tk.Interval())
	assert.True(t, tk.Matches(testID))
	assert.True(t, uid.IsSame(testID, tk.ID()))
}

func TestNewRejectsBadInput(t *testing.T) {
	op := OperationFunc(func() Status { return Done })
	_, err := New(uid.Bad, time.Now(), 0, 0, op, nil)
	assert.ErrorIs(t, err, ErrBadUID)

	_, err = New(testID, time.Now(), 0, 0, nil, nil)
	assert.ErrorIs(t, err, ErrNilOperation)
}

func TestUpdateNextRunAdvancesByInterval(t *testing.T) {
	now := time.Unix(1000, 0)
	tk, err := New(testID, now, 0, 2*time.Second, OperationFunc(func() Status { return Continue }), nil)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.Equal(t, Continue, tk.Run())
		tk.UpdateNextRun()
		if got, want := tk.NextRun(), now.Add(time.Duration(2*i)*time.Second); !got.Equal(want) {
			t.Fatalf("NextRun() = %v, want %v", got, want)
		}
	}
}

func TestRunAlwaysCallsCleanupOnce(t *testing.T) {
	for _, st := range []Status{Done, Continue, Error} {
		t.Run(st.String(), func(t *testing.T) {
			cleanups := 0
			tk, err := New(testID, time.Now(), 0, 0,
				OperationFunc(func() Status { return st }),
				CleanupFunc(func() { cleanups++ }))
			require.NoError(t, err)
			assert.Equal(t, st, tk.Run())
			assert.Equal(t, 1, cleanups)
		})
	}
}

func TestRunCleansUpOnPanic(t *testing.T) {
	cleaned := false
	tk, err := New(testID, time.Now(), 0, 0,
		OperationFunc(func() Status { panic("boom") }),
		CleanupFunc(func() { cleaned = true }))
	require.NoError(t, err)
	assert.Panics(t, func() { tk.Run() })
	assert.True(t, cleaned)
}

func TestCompare(t *testing.T) {
	op := OperationFunc(func() Status { return Done })
	now := time.Unix(1000, 0)
	early, _ := New(testID, now, 0, 0, op, nil)
	late, _ := New(testID, now, time.Second, 0, op, nil)

	assert.Negative(t, Compare(early, late))
	assert.Positive(t, Compare(late, early))
	assert.Zero(t, Compare(early, early))
	assert.Positive(t, CompareReverse(early, late))

	// Far apart due times must not wrap around.
	farLate, _ := New(testID, now, 200*365*24*time.Hour, 0, op, nil)
	assert.Negative(t, Compare(early, farLate))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "unknown", Status(42).String())
}
