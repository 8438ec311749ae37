package providers

import "github.com/coder/quartz"

// NewClockProvider returns the wall clock. Tests substitute quartz.NewMock.
func NewClockProvider() quartz.Clock {
	return quartz.NewReal()
}
