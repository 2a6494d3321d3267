// Package presentation exposes a second-screen presentation API to an
// embedder by exchanging messages with a native host over an asynchronous
// channel.
//
// A Presentation owns three pieces of bookkeeping:
//
//   - a Registry that hands out request ids for RequestShow and resolves each
//     pending request exactly once when the host answers,
//   - a Broadcaster that caches the display-available flag and fans change
//     notifications out to listeners in registration order,
//   - a Dispatcher that decodes host messages and routes them to the two above.
//
// Host responses are never delivered on the caller's stack: the dispatcher
// posts them onto a TaskQueue and they run on the next turn of the loop.
// Everything except HandleMessage must be called from the goroutine that
// runs the queue.
package presentation
