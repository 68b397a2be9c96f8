package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges a callback subscription onto a channel so
// streaming consumers can select over bus events. Delivery is lossy: a
// full channel drops the event rather than stalling the dispatcher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
