package relay

import (
	"context"
	"io"
	"net"
	"sync"
	"time"
)

// runSession relays bytes from conn into a freshly opened sink until the
// peer disconnects, an I/O error occurs, or ctx is cancelled. Session
// failures end the session only; the accept loop keeps running.
func (s *Server) runSession(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log := s.log.With("remote", remote)

	// Unblock conn reads and sink writes on shutdown. The sink close has to
	// be hooked in once the sink exists; the open itself watches ctx.
	var mu sync.Mutex
	var sink io.WriteCloser
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
		mu.Lock()
		if sink != nil {
			sink.Close()
		}
		mu.Unlock()
	})
	defer stop()
	defer conn.Close()

	opened, err := s.sink.OpenSink(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("relay session stopped before the audio sink opened")
		} else {
			log.Error("cannot open audio sink", "error", err)
		}
		return
	}
	mu.Lock()
	sink = opened
	mu.Unlock()
	defer sink.Close()

	log.Info("relay session started")
	s.metrics.ActiveSessions.Add(ctx, 1)
	start := time.Now()
	defer func() {
		s.metrics.ActiveSessions.Add(ctx, -1)
		s.metrics.SessionDuration.Record(ctx, time.Since(start).Seconds())
	}()

	buf := make([]byte, s.bufferSize)
	var relayed int64
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			// The whole chunk goes to the sink before the next read so
			// the byte stream stays contiguous.
			if _, werr := sink.Write(buf[:n]); werr != nil {
				log.Error("audio sink write failed, ending session",
					"error", werr, "relayed_bytes", relayed,
				)
				return
			}
			relayed += int64(n)
			s.metrics.RelayedBytes.Add(ctx, int64(n))
		}
		if err != nil {
			if err == io.EOF {
				log.Info("transmitter disconnected", "relayed_bytes", relayed)
			} else if ctx.Err() != nil {
				log.Info("relay session stopped", "relayed_bytes", relayed)
			} else {
				log.Warn("connection read failed, ending session",
					"error", err, "relayed_bytes", relayed,
				)
			}
			return
		}
	}
}
