package clock

import (
	"sync"
	"time"
)

// Physical is an adjustable-offset wall clock. Berkeley rounds move the
// offset; the system clock itself is never touched.
type Physical struct {
	mu     sync.Mutex
	offset int64 // milliseconds
}

// SystemNow returns the raw system time in milliseconds.
func (p *Physical) SystemNow() int64 {
	return time.Now().UnixMilli()
}

// Now returns the adjusted time: system time plus the current offset.
func (p *Physical) Now() int64 {
	return p.SystemNow() + p.Offset()
}

// Offset returns the current offset in milliseconds.
func (p *Physical) Offset() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// SetOffset replaces the offset.
func (p *Physical) SetOffset(offset int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = offset
}

// Adjust adds delta to the offset and returns the new value.
func (p *Physical) Adjust(delta int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset += delta
	return p.offset
}
