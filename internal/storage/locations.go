package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"ridecore/internal/location"
)

// BatchInsertLocations satisfies location.PersistenceWriter: the drain task
// in internal/location hands it one flattened batch per flush, which lands
// as a single multi-row insert rather than one round trip per ping.
func (p *Postgres) BatchInsertLocations(ctx context.Context, pings []location.Ping) error {
	if len(pings) == 0 {
		return nil
	}

	batch := make([][]any, len(pings))
	for i, ping := range pings {
		batch[i] = []any{ping.DriverID, ping.Lat, ping.Lng, ping.Heading, ping.Speed, ping.Accuracy, ping.At}
	}

	_, err := p.pool.CopyFrom(
		ctx,
		pgx.Identifier{"driver_locations"},
		[]string{"driver_id", "latitude", "longitude", "heading", "speed", "accuracy", "recorded_at"},
		&sliceCopySource{rows: batch},
	)
	return err
}

// sliceCopySource adapts an in-memory row slice to pgx.CopyFromSource for
// BatchInsertLocations' bulk insert.
type sliceCopySource struct {
	rows []([]any)
	i    int
}

func (s *sliceCopySource) Next() bool {
	return s.i < len(s.rows)
}

func (s *sliceCopySource) Values() ([]any, error) {
	row := s.rows[s.i]
	s.i++
	return row, nil
}

func (s *sliceCopySource) Err() error {
	return nil
}
