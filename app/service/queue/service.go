package queue

import (
	"log/slog"

	"github.com/samber/do"
)

const bufferSize = 64

var _ do.Shutdownable = (*Service)(nil)

// Service buffers inbound chat messages between the bridge poll loop and
// the message handler.
type Service struct {
	queue chan Message
}

type Message struct {
	Sender string
	Text   string
}

func New(_ *do.Injector) (*Service, error) {
	return &Service{
		queue: make(chan Message, bufferSize),
	}, nil
}

// Add enqueues a message, dropping it when the buffer is full. Add after
// Shutdown is a no-op.
func (s *Service) Add(sender, text string) {
	defer func() {
		// send on closed channel during shutdown
		_ = recover()
	}()

	select {
	case s.queue <- Message{Sender: sender, Text: text}:
	default:
		slog.Warn("Message queue is full, dropping message", "sender", sender)
	}
}

func (s *Service) Channel() <-chan Message {
	return s.queue
}

func (s *Service) Shutdown() error {
	close(s.queue)

	return nil
}
