package decide

// Sink consumes confirmed decisions. Publish is called from the
// detection tick and must not block it.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }

// ChanSink delivers events over a buffered channel. When the consumer
// falls behind, the oldest undelivered event is dropped so the pipeline
// never stalls on a slow reader.
type ChanSink struct {
	ch chan Event
}

func NewChanSink(buffer int) *ChanSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChanSink{ch: make(chan Event, buffer)}
}

func (s *ChanSink) Events() <-chan Event {
	return s.ch
}

func (s *ChanSink) Publish(ev Event) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
