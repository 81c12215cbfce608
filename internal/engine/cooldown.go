package engine

// Cooldown remembers the tick at which each region last raised an alert.
type Cooldown struct {
	last []uint64
	seen []bool
}

func NewCooldown(regions int) *Cooldown {
	return &Cooldown{last: make([]uint64, regions), seen: make([]bool, regions)}
}

// Allow reports whether region idx may raise at tick and records it if so.
func (c *Cooldown) Allow(idx int, tick uint64, cooldownTicks int) bool {
	if cooldownTicks <= 0 {
		c.last[idx], c.seen[idx] = tick, true
		return true
	}
	if c.seen[idx] && tick-c.last[idx] < uint64(cooldownTicks) {
		return false
	}
	c.last[idx], c.seen[idx] = tick, true
	return true
}
