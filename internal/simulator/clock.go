package simulator

import "sync"

// Clock holds simulated time in seconds.
type Clock struct {
	now  float64
	step float64
	mu   sync.RWMutex
}

func NewClock(step float64) *Clock {
	if step <= 0 {
		step = 1.0
	}
	return &Clock{step: step}
}

func (c *Clock) Now() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *Clock) Step() float64 {
	return c.step
}

// Advance moves the clock one step and returns the new time.
func (c *Clock) Advance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}
