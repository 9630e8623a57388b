package render

import (
	"time"
)

// ClockSink is an AudioSink that discards the audio but paces the writer in
// real time, as an audio device would. It lets the engine run headless.
type ClockSink struct {
	sampleRate int
	next       time.Time
}

// maxLag is how far behind the clock may fall before it stops trying to
// catch up.
const maxLag = 200 * time.Millisecond

func NewClockSink(sampleRate int) *ClockSink {
	return &ClockSink{sampleRate: sampleRate}
}

func (c *ClockSink) WriteAudio(buffer []float32) error {
	d := time.Duration(len(buffer)/2) * time.Second / time.Duration(c.sampleRate)
	now := time.Now()
	if c.next.IsZero() || now.Sub(c.next) > maxLag {
		c.next = now
	}
	c.next = c.next.Add(d)
	time.Sleep(time.Until(c.next))
	return nil
}

func (c *ClockSink) Close() error {
	return nil
}
