// Package mock provides an in-memory implementation of [audio.CaptureSource]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records method calls so that tests
// can assert on them, and exposes exported fields the test sets to control
// return values and the buffers delivered to the capture callback.
//
// Typical usage:
//
//	src := &mock.CaptureSource{
//	    ConfigResult: audio.DefaultConfig(),
//	    Buffers: []audio.Buffer{
//	        {Float32: []float32{0.5, -0.5}},
//	    },
//	}
//	_ = src.Start(func(b audio.Buffer) { ... })
package mock

import (
	"sync"

	"github.com/kzeller/netmic/pkg/audio"
)

// CaptureSource is a scripted implementation of [audio.CaptureSource].
// Start delivers every entry of Buffers to the callback synchronously, in
// order, then returns. Further buffers can be injected with [CaptureSource.Emit].
type CaptureSource struct {
	mu sync.Mutex

	// ConfigResult is returned by [CaptureSource.Config].
	ConfigResult audio.Config

	// Buffers are delivered to the capture callback by Start, in order.
	Buffers []audio.Buffer

	// StartError is returned by Start without delivering any buffers.
	StartError error

	// StopError is returned by Stop.
	StopError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	cb      func(audio.Buffer)
	stopped bool
}

// Config implements [audio.CaptureSource].
func (s *CaptureSource) Config() audio.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ConfigResult
}

// Start implements [audio.CaptureSource]. It delivers the scripted Buffers
// synchronously before returning.
func (s *CaptureSource) Start(cb func(audio.Buffer)) error {
	s.mu.Lock()
	s.CallCountStart++
	if s.StartError != nil {
		err := s.StartError
		s.mu.Unlock()
		return err
	}
	s.cb = cb
	buffers := s.Buffers
	s.mu.Unlock()

	for _, b := range buffers {
		cb(b)
	}
	return nil
}

// Emit delivers one additional buffer to the registered callback. It is a
// no-op when Start has not been called or Stop already was.
func (s *CaptureSource) Emit(b audio.Buffer) {
	s.mu.Lock()
	cb := s.cb
	stopped := s.stopped
	s.mu.Unlock()
	if cb != nil && !stopped {
		cb(b)
	}
}

// Stop implements [audio.CaptureSource].
func (s *CaptureSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.stopped = true
	return s.StopError
}
