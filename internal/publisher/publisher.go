// Package publisher defines the event publishing seam. Completed-release
// events go out through a Publisher so downstream tooling (shelf display,
// collection stats) can react without polling the library directory.
package publisher

import "context"

// Publisher delivers one payload to a named topic and returns the
// broker-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
