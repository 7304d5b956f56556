package sqlstore

const seriesColumns = `
id::text, group_id, frequency, day_of_week, start_date, end_date, time_of_day, timezone,
title, description, location, max_participants, created_by, created_at, updated_at, deleted_at`

const insertSeriesSQL = `
INSERT INTO recurring_series (
  id, group_id, frequency, day_of_week, start_date, end_date, time_of_day, timezone,
  title, description, location, max_participants, created_by, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`

const getSeriesSQL = `SELECT ` + seriesColumns + ` FROM recurring_series WHERE id = $1`

const listActiveSeriesSQL = `
SELECT ` + seriesColumns + `
FROM recurring_series
WHERE deleted_at IS NULL
ORDER BY id
`

const updateSeriesSQL = `
UPDATE recurring_series SET
  end_date = $2,
  title = $3,
  description = $4,
  location = $5,
  max_participants = $6,
  updated_at = $7
WHERE id = $1
`

const existingDatesSQL = `
SELECT instance_date
FROM games
WHERE series_id = $1 AND instance_date BETWEEN $2 AND $3
ORDER BY instance_date
`

// insertInstancesSQL inserts a whole batch; the unique (series_id, instance_date)
// constraint drops dates that another writer got to first.
const insertInstancesSQL = `
INSERT INTO games (
  id, group_id, series_id, instance_date, title, description, location,
  scheduled_time, status, max_participants, current_participants,
  created_by, created_at, updated_at
)
SELECT b.id, $1, $2, b.instance_date, $3, $4, $5,
       b.scheduled_time, 'UPCOMING', $6, 0,
       $7, $8, $8
FROM unnest($9::uuid[], $10::date[], $11::timestamptz[]) AS b(id, instance_date, scheduled_time)
ON CONFLICT (series_id, instance_date) DO NOTHING
RETURNING id::text
`

const selectMutableInstancesSQL = `
SELECT id::text, title, description, location, max_participants
FROM games
WHERE series_id = $1 AND status = 'UPCOMING' AND scheduled_time > $2
ORDER BY id
FOR UPDATE
`

const updateInstanceSQL = `
UPDATE games SET
  title = $2,
  description = $3,
  location = $4,
  max_participants = $5,
  updated_at = $6
WHERE id = $1
`

const softDeleteSeriesSQL = `
UPDATE recurring_series SET
  deleted_at = COALESCE(deleted_at, $2),
  updated_at = CASE WHEN deleted_at IS NULL THEN $2 ELSE updated_at END
WHERE id = $1
`

const deleteFutureInstancesSQL = `
DELETE FROM games
WHERE id = ANY($1::uuid[])
`

const lockFutureInstanceIDsSQL = `
SELECT id::text
FROM games
WHERE series_id = $1 AND status = 'UPCOMING' AND scheduled_time > $2
ORDER BY id
FOR UPDATE
`

const insertOutboxSQL = `
INSERT INTO outbox (
  message_id, trace_id, routing_key, payload, occurred_at, status, attempt, next_retry_at
) VALUES ($1, $2, $3, $4::jsonb, $5, 'pending', 0, $5)
`
