package render

import (
	"sync"
	"time"
)

type (
	// Broker connects the engine to its goroutines. ToPlayer carries
	// transport commands to the player, which drains it once per render
	// block. ToLoader asks the loader goroutine to preload the assets of the
	// latest snapshot. ToObserver carries position reports and alerts from
	// the player back to whoever is listening.
	//
	// For closing goroutines, the broker has two channels for each goroutine:
	// CloseXXX and FinishedXXX. CloseXXX has a capacity of 1, so an empty
	// message can always be sent without blocking; if it is already full,
	// someone else has already requested the closure. FinishedXXX is closed
	// by the goroutine once it has cleaned up, so "<-FinishedXXX" waits for
	// it, typically combined with a timeout using TimeoutReceive.
	Broker struct {
		ToPlayer   chan any
		ToLoader   chan struct{}
		ToObserver chan PlayerMsg

		CloseAudio  chan struct{}
		CloseLoader chan struct{}

		FinishedAudio  chan struct{}
		FinishedLoader chan struct{}

		bufferPool sync.Pool
	}

	// PlayerMsg is sent by the player after each block and whenever
	// something goes wrong. The position is not boxed to avoid allocations;
	// infrequent data, such as alerts, is passed in Data.
	PlayerMsg struct {
		HasPosition bool
		Beat        float64
		Playing     bool
		Peak        float32

		Data any
	}

	// Alert is a problem the render path could not handle itself, e.g. a
	// sample that is not loaded.
	Alert struct {
		Name     string
		Message  string
		Priority AlertPriority
	}

	AlertPriority int

	startMsg     struct{}
	stopMsg      struct{}
	tempoMsg     struct{ bpm float64 }
	clickMsg     struct{ enabled bool }
	clickGainMsg struct{ gain float32 }
	seekMsg      struct{ beat float64 }
)

const (
	Info AlertPriority = iota
	Warning
	Error
)

func NewBroker() *Broker {
	return &Broker{
		ToPlayer:       make(chan any, 1024),
		ToLoader:       make(chan struct{}, 1),
		ToObserver:     make(chan PlayerMsg, 1024),
		CloseAudio:     make(chan struct{}, 1),
		CloseLoader:    make(chan struct{}, 1),
		FinishedAudio:  make(chan struct{}),
		FinishedLoader: make(chan struct{}),
		bufferPool:     sync.Pool{New: func() any { return new([]float32) }},
	}
}

// GetBuffer returns a buffer of length n from the buffer pool. The contents
// are not cleared. After using the buffer, return it with PutBuffer.
func (b *Broker) GetBuffer(n int) *[]float32 {
	buf := b.bufferPool.Get().(*[]float32)
	if cap(*buf) < n {
		*buf = make([]float32, n)
	}
	*buf = (*buf)[:n]
	return buf
}

// PutBuffer returns a buffer to the buffer pool.
func (b *Broker) PutBuffer(buf *[]float32) {
	*buf = (*buf)[:0]
	b.bufferPool.Put(buf)
}

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent, false
// otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received from a
// channel, or timing out after t. ok will be false if the timeout occurred or
// if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}

// TimeoutWait blocks until c is closed or t has passed. It returns false on
// timeout.
func TimeoutWait(c <-chan struct{}, t time.Duration) bool {
	select {
	case <-c:
		return true
	case <-time.After(t):
		return false
	}
}
