package proctree

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/testutil"
)

func staticLister(procs ...Match) Lister {
	return ListerFunc(func(context.Context) ([]Match, error) {
		return procs, nil
	})
}

func TestFindByName(t *testing.T) {
	self := int32(os.Getpid())
	lister := staticLister(
		Match{PID: self, Name: "resmon-phocus"},
		Match{PID: 900, Name: "Phocus Helper"},
		Match{PID: 812, Name: "Phocus"},
		Match{PID: 10, Name: "launchd"},
	)

	m, err := FindByName(context.Background(), lister, "phocus")
	require.NoError(t, err)
	assert.Equal(t, Match{PID: 812, Name: "Phocus"}, m)
}

func TestFindByName_NotFound(t *testing.T) {
	_, err := FindByName(context.Background(), staticLister(Match{PID: 1, Name: "init"}), "Phocus")
	require.Error(t, err)
	assert.True(t, rerrors.HasCode(err, rerrors.CodeTargetNotFound))
}

func TestFindByName_EmptyName(t *testing.T) {
	_, err := FindByName(context.Background(), staticLister(), "")
	assert.True(t, rerrors.HasCode(err, rerrors.CodeConfigInvalid))
}

func TestFindByName_ListError(t *testing.T) {
	lister := ListerFunc(func(context.Context) ([]Match, error) {
		return nil, errors.New("sysctl failed")
	})
	_, err := FindByName(context.Background(), lister, "x")
	assert.EqualError(t, err, "sysctl failed")
}

func TestWaitForName_PollsUntilFound(t *testing.T) {
	var calls atomic.Int32
	lister := ListerFunc(func(context.Context) ([]Match, error) {
		if calls.Add(1) < 3 {
			return nil, nil
		}
		return []Match{{PID: 77, Name: "Phocus"}}, nil
	})

	m, err := WaitForName(testutil.NewTestContext(t), lister, "Phocus", 5*time.Millisecond, testutil.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, int32(77), m.PID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForName_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := WaitForName(ctx, staticLister(), "Phocus", 5*time.Millisecond, testutil.NewTestLogger(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNameOf(t *testing.T) {
	assert.NotEmpty(t, NameOf(context.Background(), int32(os.Getpid())))
	assert.Empty(t, NameOf(context.Background(), -1))
}
