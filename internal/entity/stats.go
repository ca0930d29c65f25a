package entity

import (
	"sync"
	"time"
)

// Stats accumulates parse-worker counters.
type Stats struct {
	mu              sync.Mutex
	jobsProcessed   uint64
	entitiesFound   uint64
	entitiesMissing uint64
	totalParseTime  time.Duration
	largestPayload  int
}

type StatsSnapshot struct {
	JobsProcessed   uint64
	EntitiesFound   uint64
	EntitiesMissing uint64
	TotalParseTime  time.Duration
	AvgParseTime    time.Duration
	LargestPayload  int
}

func (s *Stats) record(payloadSize, found, missing int, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobsProcessed++
	s.entitiesFound += uint64(found)
	s.entitiesMissing += uint64(missing)
	s.totalParseTime += elapsed
	if payloadSize > s.largestPayload {
		s.largestPayload = payloadSize
	}
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{
		JobsProcessed:   s.jobsProcessed,
		EntitiesFound:   s.entitiesFound,
		EntitiesMissing: s.entitiesMissing,
		TotalParseTime:  s.totalParseTime,
		LargestPayload:  s.largestPayload,
	}
	if s.jobsProcessed > 0 {
		snap.AvgParseTime = s.totalParseTime / time.Duration(s.jobsProcessed)
	}
	return snap
}
