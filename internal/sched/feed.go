package sched

// feed is a bounded drop-oldest event stream. The engine publishes without
// ever blocking: when the buffer is full the oldest event is discarded, so
// a slow consumer can never stall the tick loop.
type feed struct {
	ch      chan Event
	dropped int64
}

func newFeed(size int) *feed {
	if size <= 0 {
		size = 1
	}
	return &feed{ch: make(chan Event, size)}
}

func (f *feed) publish(ev Event) {
	for {
		select {
		case f.ch <- ev:
			return
		default:
		}
		select {
		case <-f.ch:
			f.dropped++
		default:
		}
	}
}

func (f *feed) close() { close(f.ch) }
