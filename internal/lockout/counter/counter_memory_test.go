package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	requesttime "lockgate/pkg/platform/middleware/requesttime"
)

type MemoryCounterSuite struct {
	suite.Suite
	counter *MemoryCounter
}

func TestMemoryCounterSuite(t *testing.T) {
	suite.Run(t, new(MemoryCounterSuite))
}

func (s *MemoryCounterSuite) SetupTest() {
	s.counter = NewMemory(10 * time.Minute)
}

func (s *MemoryCounterSuite) TestGetAbsentReturnsZero() {
	count, err := s.counter.Get(context.Background(), "ghost@example.com")
	s.NoError(err)
	s.Zero(count)
}

func (s *MemoryCounterSuite) TestIncrementCreatesAndGrows() {
	ctx := context.Background()

	count, err := s.counter.Increment(ctx, "a@x.com")
	s.NoError(err)
	s.Equal(1, count)

	count, err = s.counter.Increment(ctx, "a@x.com")
	s.NoError(err)
	s.Equal(2, count)

	count, err = s.counter.Get(ctx, "a@x.com")
	s.NoError(err)
	s.Equal(2, count)
}

func (s *MemoryCounterSuite) TestIdentifiersAreIndependent() {
	ctx := context.Background()

	_, err := s.counter.Increment(ctx, "a@x.com")
	s.NoError(err)

	count, err := s.counter.Get(ctx, "b@x.com")
	s.NoError(err)
	s.Zero(count)
}

func (s *MemoryCounterSuite) TestDecayWindowExpiresCounter() {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requesttime.WithTime(context.Background(), start)

	_, err := s.counter.Increment(ctx, "a@x.com")
	s.NoError(err)
	_, err = s.counter.Increment(ctx, "a@x.com")
	s.NoError(err)

	// Just inside the window the count is still visible.
	later := requesttime.WithTime(context.Background(), start.Add(9*time.Minute))
	count, err := s.counter.Get(later, "a@x.com")
	s.NoError(err)
	s.Equal(2, count)

	// Past the window the counter reads as absent and restarts at 1.
	expired := requesttime.WithTime(context.Background(), start.Add(11*time.Minute))
	count, err = s.counter.Get(expired, "a@x.com")
	s.NoError(err)
	s.Zero(count)

	count, err = s.counter.Increment(expired, "a@x.com")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *MemoryCounterSuite) TestClearIsIdempotent() {
	ctx := context.Background()

	_, err := s.counter.Increment(ctx, "a@x.com")
	s.NoError(err)

	s.NoError(s.counter.Clear(ctx, "a@x.com"))
	s.NoError(s.counter.Clear(ctx, "a@x.com"), "clearing an absent key is a no-op")

	count, err := s.counter.Get(ctx, "a@x.com")
	s.NoError(err)
	s.Zero(count)
}

func (s *MemoryCounterSuite) TestConcurrentIncrementsLoseNothing() {
	ctx := context.Background()
	const goroutines = 32

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := s.counter.Increment(ctx, "parallel@x.com")
			s.NoError(err)
		}()
	}
	wg.Wait()

	count, err := s.counter.Get(ctx, "parallel@x.com")
	s.NoError(err)
	s.Equal(goroutines, count)
}
