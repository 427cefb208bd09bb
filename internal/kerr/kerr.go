// Package kerr defines the error-kind sentinels shared across the engine.
// Components wrap these with fmt.Errorf("%w") so callers can still
// errors.Is against the kind regardless of which layer raised it.
package kerr

import "errors"

var (
	// ErrKeyNotFound is returned by get of a non-existent or tombstoned key.
	ErrKeyNotFound = errors.New("korudelta: key not found")
	// ErrNoVersionAt is returned by get_at when the key did not exist yet
	// at the requested timestamp.
	ErrNoVersionAt = errors.New("korudelta: no version at requested time")
	// ErrDuplicateWrite is returned by apply_remote/VersionStore.Put for an
	// already-known write_id. Callers treat this as a no-op success.
	ErrDuplicateWrite = errors.New("korudelta: duplicate write_id")
	// ErrSerialization is returned when a value fails canonical encoding.
	ErrSerialization = errors.New("korudelta: serialization error")
	// ErrIO is returned when a WAL write/read/fsync fails.
	ErrIO = errors.New("korudelta: io error")
	// ErrWALCorruption is raised (and logged, not surfaced fatally) when a
	// WAL record fails its CRC check during recovery.
	ErrWALCorruption = errors.New("korudelta: wal corruption")
	// ErrAlreadyOpen is returned at startup when another process already
	// holds the data directory's exclusive lock.
	ErrAlreadyOpen = errors.New("korudelta: data directory already open")
	// ErrBackpressure names the replicator-queue-full-past-T_bp condition.
	// The replicator does not return it: a frame that finds the queue full
	// past T_bp is dropped and logged.
	ErrBackpressure = errors.New("korudelta: replication backpressure")
	// ErrPeerUnreachable is returned on a TCP failure talking to a peer.
	ErrPeerUnreachable = errors.New("korudelta: peer unreachable")
	// ErrQuery is returned for an unparseable filter or sort spec.
	ErrQuery = errors.New("korudelta: invalid query")
	// ErrInvalidKey is returned for an empty namespace or key.
	ErrInvalidKey = errors.New("korudelta: invalid key")
)
