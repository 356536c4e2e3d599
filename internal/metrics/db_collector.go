package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// StartDBCollector periodically refreshes the newsletter state gauges from
// the database. It stops when ctx is cancelled.
func StartDBCollector(ctx context.Context, db *pgxpool.Pool, interval time.Duration, log zerolog.Logger) {
	if db == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		updateDBGauges(ctx, db, log)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				updateDBGauges(ctx, db, log)
			}
		}
	}()
}

func updateDBGauges(ctx context.Context, db *pgxpool.Pool, log zerolog.Logger) {
	rows, err := db.Query(ctx, `SELECT state, COUNT(*) FROM messages GROUP BY state`)
	if err != nil {
		log.Warn().Err(err).Msg("metrics db query messages")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var cnt int64
		if err := rows.Scan(&state, &cnt); err != nil {
			log.Warn().Err(err).Msg("metrics db scan messages")
			continue
		}
		SetMessageStateCount(state, cnt)
	}
}
