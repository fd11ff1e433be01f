package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jdbacl/internal/identity"
	"jdbacl/internal/rowquery"
)

// TranscodeResult holds the rows of one table rewritten for the target.
type TranscodeResult struct {
	Table    string
	SourceDB string
	Rows     []*identity.Row
	// Skipped counts the rows whose natural key the target already holds.
	Skipped int
}

// TranscodeTable reads every row of table from source sourceID and rewrites
// the rows the target does not hold yet. The target key of each new row comes
// from the session's key generator. Rows the target already holds are mapped
// in the key mapper, so later tables can reference them.
func (s *Session) TranscodeTable(ctx context.Context, sourceID, table string) (*TranscodeResult, error) {
	src, err := s.Source(sourceID)
	if err != nil {
		return nil, err
	}
	model, err := s.provider.Identity(table)
	if err != nil {
		return nil, err
	}
	meta := src.Metadata.FindTable(table)
	if meta == nil {
		return nil, &identity.ConfigError{DB: src.ID, Table: table, Reason: "table not found in database metadata"}
	}
	pkCols := meta.PrimaryKeyColumns()
	if len(pkCols) == 0 {
		return nil, &identity.ConfigError{DB: src.ID, Table: table, Reason: identity.ErrNoPrimaryKey.Error()}
	}
	tc, err := s.Transcoder(src.ID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := readRows(ctx, src, meta.Name)
	if err != nil {
		return nil, err
	}

	res := &TranscodeResult{Table: meta.Name, SourceDB: src.ID}
	for _, row := range rows {
		pk := sourceKey(row, pkCols)
		nk, ok, err := s.mapper.NaturalKey(ctx, src.ID, model, pk)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &identity.ConfigError{DB: src.ID, Table: table,
				Reason: fmt.Sprintf("row %v has no natural key", pk)}
		}

		if targetPK, found, err := s.mapper.TargetPK(ctx, model, nk); err != nil {
			return nil, err
		} else if found {
			if err := s.mapper.Store(ctx, src.ID, model, nk, pk, targetPK); err != nil {
				return nil, err
			}
			res.Skipped++
			continue
		}

		newPK, err := s.keygen.Next(ctx, meta.Name, pk)
		if err != nil {
			return nil, err
		}
		if err := tc.Transcode(ctx, row, nk, newPK); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, row)
	}

	s.logger.Info("transcoded table",
		zap.String("db", src.ID),
		zap.String("table", meta.Name),
		zap.Int("rows", len(res.Rows)),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

func readRows(ctx context.Context, db *identity.Database, table string) ([]*identity.Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s", db.Renderer.QuoteIdentifier(table))
	cur, err := rowquery.Query(ctx, db.Conn, query)
	if err != nil {
		return nil, fmt.Errorf("session: read %s.%s: %w", db.ID, table, err)
	}
	defer cur.Close()

	cols := cur.Columns()
	var rows []*identity.Row
	for cur.Next() {
		values := cur.Values()
		m := make(map[string]any, len(cols))
		for i, col := range cols {
			m[col] = values[i]
		}
		rows = append(rows, &identity.Row{Table: table, Values: m})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("session: read %s.%s: %w", db.ID, table, err)
	}
	return rows, nil
}

func sourceKey(row *identity.Row, columns []string) any {
	comps := make([]any, len(columns))
	for i, col := range columns {
		comps[i], _ = row.Get(col)
	}
	return identity.PKValue(comps)
}
