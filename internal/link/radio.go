package link

import "context"

// Radio is a point-to-point radio link. It is opened once at startup and
// closed once at shutdown. A failed SendFrame must leave the link usable.
type Radio interface {
	Open() error
	Close() error
	SendFrame(ctx context.Context, peer Address, payload []byte) error
}
