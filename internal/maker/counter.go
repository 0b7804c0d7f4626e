package maker

import (
	"sync"
	"time"
)

// DailyCounter counts successfully submitted orders per UTC calendar day.
// The count resets to zero the first time a new UTC date is observed, before
// any cap evaluation.
type DailyCounter struct {
	mu    sync.Mutex
	count int
	date  string // UTC calendar day of the last touch, "2006-01-02"
	now   func() time.Time
}

// NewDailyCounter creates a counter starting at zero for the current UTC day.
func NewDailyCounter() *DailyCounter {
	return &DailyCounter{now: time.Now}
}

func (c *DailyCounter) rollLocked() {
	today := c.now().UTC().Format(time.DateOnly)
	if c.date != today {
		c.date = today
		c.count = 0
	}
}

// Capped reports whether the daily cap has been reached for the current UTC
// date, rolling the counter over first when the date has changed.
func (c *DailyCounter) Capped(maxTradesPerDay int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	return c.count >= maxTradesPerDay
}

// Increment records one successfully submitted order.
func (c *DailyCounter) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	c.count++
}

// Count returns today's count, rolling over first on a date change.
func (c *DailyCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	return c.count
}
