package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/telemetry-uplink/internal/telemetry"
)

// Store archives the uplink sessions and every transmission cycle they ran.
// Archiving is a side channel, the uplink does not depend on it succeeding.
type Store interface {
	// CreateSession registers a new uplink run and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - linkType: Type of radio link (e.g., "xbee", "mqtt")
	//   - peer: Address of the remote radio
	//   - config: Optional configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, linkType, peer string, config any) (sessionID int64, err error)

	// Session retrieves a session by its ID
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all sessions ordered by start time in ascending order
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreCycle saves the sampled telemetry and the transmission outcome of
	// a single cycle. Absent attributes are stored as NULL.
	StoreCycle(ctx context.Context, sessionID int64, s *telemetry.Sample, stats CycleStats) (cycleID int64, err error)

	// Cycles returns the cycles of a session in the order they were stored
	Cycles(ctx context.Context, sessionID int64) (cycles []*Cycle, err error)

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}
