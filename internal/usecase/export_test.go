package usecase

import "time"

// SetReplayClock overrides the clock used to pick due events.
func SetReplayClock(s *ReplayService, now func() time.Time) {
	s.now = now
}
