package lease

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

type snapshot struct {
	Version  int              `msgpack:"v"`
	LastRuns map[string]int64 `msgpack:"last_runs"` // unix nanoseconds
}

// EncodeLastRuns serializes job last-run clocks for SaveState.
func EncodeLastRuns(lastRuns map[string]time.Time) ([]byte, error) {
	snap := snapshot{
		Version:  snapshotVersion,
		LastRuns: make(map[string]int64, len(lastRuns)),
	}
	for name, at := range lastRuns {
		snap.LastRuns[name] = at.UnixNano()
	}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode last runs: %w", err)
	}
	return data, nil
}

// DecodeLastRuns is the inverse of EncodeLastRuns. Times are returned in UTC.
func DecodeLastRuns(data []byte) (map[string]time.Time, error) {
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode last runs: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported last runs version %d", snap.Version)
	}

	lastRuns := make(map[string]time.Time, len(snap.LastRuns))
	for name, nanos := range snap.LastRuns {
		lastRuns[name] = time.Unix(0, nanos).UTC()
	}
	return lastRuns, nil
}
