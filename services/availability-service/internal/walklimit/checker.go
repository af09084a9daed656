package walklimit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/waggytails/pawsched/services/availability-service/internal/model"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Checker reports whether a date is already at walk capacity. The per-day cap
// only applies while an active multi-day sitting overlaps the date: with a
// dog boarding on site, only so many walks can leave the house that day.
type Checker struct {
	pool        querier
	walksPerDay int
}

func NewChecker(pool querier, walksPerDay int) *Checker {
	if walksPerDay <= 0 {
		walksPerDay = 2
	}
	return &Checker{pool: pool, walksPerDay: walksPerDay}
}

func (c *Checker) Check(ctx context.Context, date time.Time) (model.WalkLimitStatus, error) {
	status := model.WalkLimitStatus{Limit: c.walksPerDay}

	// The date is bound as a plain string so the ::date cast cannot shift
	// through the Postgres session timezone.
	day := date.Format("2006-01-02")

	var sittings int
	err := c.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings
		WHERE booking_type = 'multi_day_sitting'
			AND status = 'confirmed'
			AND start_date <= $1::date
			AND end_date >= $1::date
	`, day).Scan(&sittings)
	if err != nil {
		return model.WalkLimitStatus{}, err
	}
	if sittings == 0 {
		return status, nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	err = c.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM bookings
		WHERE booking_type = 'walk'
			AND status = 'confirmed'
			AND start_time >= $1
			AND start_time < $2
	`, dayStart, dayEnd).Scan(&status.CurrentCount)
	if err != nil {
		return model.WalkLimitStatus{}, err
	}

	status.LimitReached = status.CurrentCount >= c.walksPerDay
	return status, nil
}
