package userdb

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	snowflakeTimeBits   = 42
	snowflakeWorkerBits = 10
	snowflakeSeqBits    = 12

	snowflakeMaxWorker = (1 << snowflakeWorkerBits) - 1
	snowflakeMaxSeq    = (1 << snowflakeSeqBits) - 1

	// Custom epoch keeps 42 bits of milliseconds useful for ~139 years.
	snowflakeEpoch = int64(1_600_000_000_000) // 2020-09-13 UTC

	clockSpinLimit = 10 * time.Millisecond
)

// ErrClockRegression is returned when the wall clock moved backwards by more
// than the spin budget, so waiting it out would stall callers.
var ErrClockRegression = errors.New("userdb: clock moved backwards")

// Snowflake generates unique int64 uids: 42 bits of milliseconds since the
// custom epoch, 10 bits of worker id, 12 bits of per-millisecond sequence.
type Snowflake struct {
	mu       sync.Mutex
	workerID int64
	lastTS   int64
	seq      int64

	nowMillis func() int64
}

func NewSnowflake(workerID uint32) (*Snowflake, error) {
	if workerID > snowflakeMaxWorker {
		return nil, fmt.Errorf("worker id %d exceeds %d", workerID, snowflakeMaxWorker)
	}
	return &Snowflake{
		workerID:  int64(workerID),
		lastTS:    -1,
		nowMillis: func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Next returns the next uid. When the clock rewinds it spins briefly waiting
// for the clock to catch up; a larger regression is surfaced as
// ErrClockRegression rather than risking duplicate ids.
func (s *Snowflake) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.nowMillis()
	if ts < s.lastTS {
		deadline := time.Now().Add(clockSpinLimit)
		for ts < s.lastTS {
			if time.Now().After(deadline) {
				return 0, fmt.Errorf("%w: %dms behind", ErrClockRegression, s.lastTS-ts)
			}
			time.Sleep(time.Millisecond)
			ts = s.nowMillis()
		}
	}

	if ts == s.lastTS {
		s.seq = (s.seq + 1) & snowflakeMaxSeq
		if s.seq == 0 {
			// Sequence exhausted within this millisecond; roll to the next.
			for ts <= s.lastTS {
				ts = s.nowMillis()
			}
		}
	} else {
		s.seq = 0
	}
	s.lastTS = ts

	return (ts-snowflakeEpoch)<<(snowflakeWorkerBits+snowflakeSeqBits) |
		s.workerID<<snowflakeSeqBits |
		s.seq, nil
}
