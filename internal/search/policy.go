package search

import "github.com/t3m14/tours-sub000/internal/domain"

// PublishPolicy decides when a poll is worth a result fetch and broadcast.
type PublishPolicy struct {
	// FirstThreshold is the hotel count that triggers the first broadcast.
	FirstThreshold int
	// Increment is the growth since the last broadcast that triggers another one.
	Increment int
	// SmallIncrement applies instead of Increment while the count is below the
	// largest page size viewers request, or SmallCountLimit without viewers.
	SmallIncrement  int
	SmallCountLimit int
}

func DefaultPublishPolicy() PublishPolicy {
	return PublishPolicy{
		FirstThreshold:  5,
		Increment:       10,
		SmallIncrement:  5,
		SmallCountLimit: domain.DefaultPageSize,
	}
}

// publishTracker applies a PublishPolicy to the poll sequence of one job.
type publishTracker struct {
	policy    PublishPolicy
	published bool
	lastCount int
	pageSize  int
}

func newPublishTracker(policy PublishPolicy) *publishTracker {
	return &publishTracker{policy: policy}
}

func (t *publishTracker) shouldPublish(status domain.SearchStatus) bool {
	if status.Finished() {
		return true
	}
	count := status.HotelsFound
	if !t.published {
		return count > 0 && count >= t.policy.FirstThreshold
	}
	growth := count - t.lastCount
	if t.policy.Increment > 0 && growth >= t.policy.Increment {
		return true
	}
	return t.policy.SmallIncrement > 0 && count < t.smallCountLimit() && growth >= t.policy.SmallIncrement
}

// usePageSize sets the page size the small increment is measured against.
// Zero falls back to SmallCountLimit.
func (t *publishTracker) usePageSize(size int) {
	t.pageSize = size
}

func (t *publishTracker) smallCountLimit() int {
	if t.pageSize > 0 {
		return t.pageSize
	}
	return t.policy.SmallCountLimit
}

func (t *publishTracker) markPublished(count int) {
	t.published = true
	t.lastCount = count
}
