package indexdb

import (
	"context"
	"database/sql"
)

// TileFailure summarises the failed loads of one tile id.
type TileFailure struct {
	Tile      string
	Stage     string
	Count     int
	LastError string
	LastSeen  string
}

// FailedTiles lists tiles with failed loads, most frequent first.
func (s *SQLiteIndex) FailedTiles(ctx context.Context, limit int) ([]TileFailure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tile, stage, COUNT(*) AS n, MAX(ts) AS last_ts,
			(SELECT err FROM tile_loads t2 WHERE t2.tile = t1.tile AND t2.stage = t1.stage ORDER BY id DESC LIMIT 1)
		FROM tile_loads t1
		WHERE stage NOT IN ('ok', 'empty')
		GROUP BY tile, stage
		ORDER BY n DESC, tile ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TileFailure
	for rows.Next() {
		var f TileFailure
		var lastErr sql.NullString
		if err := rows.Scan(&f.Tile, &f.Stage, &f.Count, &f.LastSeen, &lastErr); err != nil {
			return nil, err
		}
		f.LastError = lastErr.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// StageCounts returns the number of tile loads per stage.
func (s *SQLiteIndex) StageCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(*) FROM tile_loads GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		out[stage] = n
	}
	return out, rows.Err()
}

type AreaEvent struct {
	TS       string
	Kind     string
	Key      string
	Tiles    int
	Resident int
	Err      string
}

// AreaHistory returns the lifecycle events of one area, oldest first.
func (s *SQLiteIndex) AreaHistory(ctx context.Context, key string) ([]AreaEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ts, kind, area_key, tiles, resident, err FROM area_events WHERE area_key = ? ORDER BY id ASC`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AreaEvent
	for rows.Next() {
		var e AreaEvent
		var errS sql.NullString
		if err := rows.Scan(&e.TS, &e.Kind, &e.Key, &e.Tiles, &e.Resident, &errS); err != nil {
			return nil, err
		}
		e.Err = errS.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// TuningDigest returns the digest of the last stored tuning, if any.
func (s *SQLiteIndex) TuningDigest(ctx context.Context) (string, bool, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM configs WHERE name = 'tuning'`).Scan(&d)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return d, true, nil
}
