package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BreakerSuite struct {
	suite.Suite
	now time.Time
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *BreakerSuite) clock() time.Time { return s.now }

func (s *BreakerSuite) newBreaker() *Breaker {
	return New("dhiway",
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithCooldown(10*time.Second),
		WithClock(s.clock),
	)
}

func (s *BreakerSuite) TestOpensAfterConsecutiveFailures() {
	b := s.newBreaker()
	s.True(b.Allow())
	s.False(b.RecordFailure().Opened)
	s.False(b.RecordFailure().Opened)
	s.True(b.RecordFailure().Opened)

	s.Equal(StateOpen, b.State())
	s.False(b.Allow())
}

func (s *BreakerSuite) TestSuccessResetsFailureCount() {
	b := s.newBreaker()
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	s.Equal(StateClosed, b.State())
}

func (s *BreakerSuite) TestHalfOpenAdmitsSingleProbe() {
	b := s.newBreaker()
	for range 3 {
		b.RecordFailure()
	}
	s.now = s.now.Add(11 * time.Second)

	s.Equal(StateHalfOpen, b.State())
	s.True(b.Allow())
	s.False(b.Allow(), "second caller must wait for the probe outcome")
}

func (s *BreakerSuite) TestProbeSuccessesClose() {
	b := s.newBreaker()
	for range 3 {
		b.RecordFailure()
	}
	s.now = s.now.Add(11 * time.Second)

	s.True(b.Allow())
	s.False(b.RecordSuccess().Closed)
	s.True(b.Allow())
	s.True(b.RecordSuccess().Closed)
	s.Equal(StateClosed, b.State())
}

func (s *BreakerSuite) TestProbeFailureReopens() {
	b := s.newBreaker()
	for range 3 {
		b.RecordFailure()
	}
	s.now = s.now.Add(11 * time.Second)

	s.True(b.Allow())
	s.True(b.RecordFailure().Opened)
	s.Equal(StateOpen, b.State())
	s.False(b.Allow())
}

func (s *BreakerSuite) TestReset() {
	b := s.newBreaker()
	for range 3 {
		b.RecordFailure()
	}
	b.Reset()
	s.Equal(StateClosed, b.State())
	s.True(b.Allow())
	s.Equal("dhiway", b.Name())
	s.Equal("closed", b.State().String())
}
