package store

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

//go:embed schema.sql
var schema string

type PGRepo struct{ pool *pgxpool.Pool }

func NewRepo(ctx context.Context, dsn string, maxConns int32) (*PGRepo, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.New("failed to parse postgres dsn").Wrap(err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.New("failed to create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.New("failed to ping postgres").Wrap(err)
	}
	return &PGRepo{pool: pool}, nil
}

func (r *PGRepo) Close() { r.pool.Close() }

func (r *PGRepo) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

// Migrate applies the embedded schema. Every statement is idempotent.
func (r *PGRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return errs.Store("apply schema", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgerr *pgconn.PgError
	return errors.As(err, &pgerr) && pgerr.Code == "23505"
}

func parseClocks(start, end string) (slots.Clock, slots.Clock, error) {
	// Parse failures are store corruption, not caller input.
	s, err := slots.ParseClock(start)
	if err != nil {
		return 0, 0, errs.New("corrupt start_time").Arg("value", start).Kind(errs.ErrStore)
	}
	e, err := slots.ParseClock(end)
	if err != nil {
		return 0, 0, errs.New("corrupt end_time").Arg("value", end).Kind(errs.ErrStore)
	}
	return s, e, nil
}

func (r *PGRepo) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, duration_min, price FROM services ORDER BY id`)
	if err != nil {
		return nil, errs.Store("list services", err)
	}
	defer rows.Close()
	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMin, &s.Price); err != nil {
			return nil, errs.Store("scan service", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Store("list services", err)
	}
	return out, nil
}

func (r *PGRepo) GetService(ctx context.Context, id int64) (*model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `SELECT id, name, duration_min, price FROM services WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.DurationMin, &s.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("service", id)
	}
	if err != nil {
		return nil, errs.Store("get service", err)
	}
	return &s, nil
}

func (r *PGRepo) ListMasters(ctx context.Context) ([]model.Master, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, specialization FROM masters ORDER BY id`)
	if err != nil {
		return nil, errs.Store("list masters", err)
	}
	defer rows.Close()
	var out []model.Master
	for rows.Next() {
		var m model.Master
		if err := rows.Scan(&m.ID, &m.Name, &m.Specialization); err != nil {
			return nil, errs.Store("scan master", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Store("list masters", err)
	}
	return out, nil
}

func (r *PGRepo) GetMaster(ctx context.Context, id int64) (*model.Master, error) {
	var m model.Master
	err := r.pool.QueryRow(ctx, `SELECT id, name, specialization FROM masters WHERE id=$1`, id).
		Scan(&m.ID, &m.Name, &m.Specialization)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("master", id)
	}
	if err != nil {
		return nil, errs.Store("get master", err)
	}
	return &m, nil
}

func (r *PGRepo) SeedCatalog(ctx context.Context, services []model.Service, masters []model.Master) (seeded bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, errs.Store("begin seed", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes concurrent seeders on the services table.
	if _, err := tx.Exec(ctx, `LOCK TABLE services IN EXCLUSIVE MODE`); err != nil {
		return false, errs.Store("lock services", err)
	}
	var n int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM services`).Scan(&n); err != nil {
		return false, errs.Store("count services", err)
	}
	if n > 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for _, s := range services {
		batch.Queue(`INSERT INTO services (name, duration_min, price) VALUES ($1,$2,$3)`, s.Name, s.DurationMin, s.Price)
	}
	for _, m := range masters {
		batch.Queue(`INSERT INTO masters (name, specialization) VALUES ($1,$2)`, m.Name, m.Specialization)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return false, errs.New("duplicate catalog entry").Kind(errs.ErrDuplicate).Wrap(err)
		}
		return false, errs.Store("insert catalog", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, errs.Store("commit seed", err)
	}
	return true, nil
}

func (r *PGRepo) GetSchedule(ctx context.Context, masterID int64, day time.Time) (*model.Schedule, error) {
	return getSchedule(ctx, r.pool, masterID, day, "")
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getSchedule(ctx context.Context, q querier, masterID int64, day time.Time, lock string) (*model.Schedule, error) {
	var (
		s          model.Schedule
		start, end string
	)
	err := q.QueryRow(ctx, `SELECT id, master_id, day, start_time, end_time FROM schedules WHERE master_id=$1 AND day=$2`+lock,
		masterID, slots.Day(day)).Scan(&s.ID, &s.MasterID, &s.Day, &start, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		// нет расписания: нет слотов
		return nil, nil
	}
	if err != nil {
		return nil, errs.Store("get schedule", err)
	}
	if s.WorkStart, s.WorkEnd, err = parseClocks(start, end); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PGRepo) ListScheduleDays(ctx context.Context, masterID int64, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `SELECT day FROM schedules WHERE master_id=$1 AND day BETWEEN $2 AND $3 ORDER BY day`,
		masterID, slots.Day(from), slots.Day(to))
	if err != nil {
		return nil, errs.Store("list schedule days", err)
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, errs.Store("scan schedule day", err)
		}
		out = append(out, slots.Day(d))
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Store("list schedule days", err)
	}
	return out, nil
}

func (r *PGRepo) InsertSchedules(ctx context.Context, rows []model.Schedule) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, s := range rows {
		batch.Queue(`
			INSERT INTO schedules (master_id, day, start_time, end_time)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (master_id, day) DO NOTHING`,
			s.MasterID, slots.Day(s.Day), s.WorkStart.String(), s.WorkEnd.String())
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	n := 0
	for range rows {
		tag, err := br.Exec()
		if err != nil {
			return n, errs.Store("insert schedule", err)
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}

func (r *PGRepo) ListConfirmedBookings(ctx context.Context, masterID int64, day time.Time) ([]model.Booking, error) {
	return confirmedBookings(ctx, r.pool, masterID, day)
}

func confirmedBookings(ctx context.Context, q querier, masterID int64, day time.Time) ([]model.Booking, error) {
	const qBusy = `
		SELECT id, client_id, service_id, master_id, day, start_time, end_time, status
		FROM bookings
		WHERE master_id=$1 AND day=$2 AND status='confirmed'
		ORDER BY start_time;
	`
	rows, err := q.Query(ctx, qBusy, masterID, slots.Day(day))
	if err != nil {
		return nil, errs.Store("list confirmed bookings", err)
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Store("list confirmed bookings", err)
	}
	return out, nil
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b          model.Booking
		start, end string
		status     string
	)
	if err := row.Scan(&b.ID, &b.ClientID, &b.ServiceID, &b.MasterID, &b.Day, &start, &end, &status); err != nil {
		return b, err
	}
	b.Status = model.BookingStatus(status)
	var err error
	b.StartTime, b.EndTime, err = parseClocks(start, end)
	return b, err
}

func (r *PGRepo) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	c, err := r.findClient(ctx, `id=$1`, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.NotFound("client", id)
	}
	return c, nil
}

func (r *PGRepo) FindClientByPhone(ctx context.Context, phone string) (*model.Client, error) {
	return r.findClient(ctx, `phone=$1`, phone)
}

func (r *PGRepo) FindClientByExternalID(ctx context.Context, externalID int64) (*model.Client, error) {
	return r.findClient(ctx, `external_id=$1`, externalID)
}

func (r *PGRepo) findClient(ctx context.Context, where string, arg any) (*model.Client, error) {
	var c model.Client
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, external_id FROM clients WHERE `+where, arg).
		Scan(&c.ID, &c.Name, &c.Phone, &c.ExternalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Store("find client", err)
	}
	return &c, nil
}

func (r *PGRepo) InsertClient(ctx context.Context, c model.Client) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO clients (name, phone, external_id) VALUES ($1,$2,$3) RETURNING id`,
		c.Name, c.Phone, c.ExternalID).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, errs.New("client already exists").Arg("phone", c.Phone).Kind(errs.ErrDuplicate).Wrap(err)
		}
		return 0, errs.Store("insert client", err)
	}
	return id, nil
}

// dayLockKey packs (master, day) into one advisory lock key. Collisions only cost
// extra serialization.
func dayLockKey(masterID int64, day time.Time) int64 {
	return masterID<<32 ^ slots.Day(day).Unix()/86400
}

// WithinDay runs fn in a transaction that holds the (master, day) advisory lock and a
// row lock on the day's schedule. The transaction commits only if fn returns nil.
func (r *PGRepo) WithinDay(ctx context.Context, masterID int64, day time.Time, fn func(ctx context.Context, tx model.DayTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errs.Store("begin booking tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, dayLockKey(masterID, day)); err != nil {
		return errs.Store("lock day", err)
	}

	if err := fn(ctx, &pgDayTx{tx: tx, masterID: masterID, day: slots.Day(day)}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Store("commit booking tx", err)
	}
	return nil
}

type pgDayTx struct {
	tx       pgx.Tx
	masterID int64
	day      time.Time
}

func (t *pgDayTx) Schedule(ctx context.Context) (*model.Schedule, error) {
	return getSchedule(ctx, t.tx, t.masterID, t.day, " FOR UPDATE")
}

func (t *pgDayTx) ConfirmedBookings(ctx context.Context) ([]model.Booking, error) {
	return confirmedBookings(ctx, t.tx, t.masterID, t.day)
}

func (t *pgDayTx) InsertBooking(ctx context.Context, b model.Booking) (int64, error) {
	if b.MasterID != t.masterID || !slots.Day(b.Day).Equal(t.day) {
		return 0, errs.New("booking outside transaction partition").Kind(errs.ErrStore)
	}
	const q = `
		INSERT INTO bookings (client_id, service_id, master_id, day, start_time, end_time, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id;
	`
	var id int64
	err := t.tx.QueryRow(ctx, q, b.ClientID, b.ServiceID, b.MasterID, t.day,
		b.StartTime.String(), b.EndTime.String(), string(b.Status)).Scan(&id)
	if err != nil {
		return 0, errs.Store("insert booking", err)
	}
	return id, nil
}

func (r *PGRepo) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, client_id, service_id, master_id, day, start_time, end_time, status
		FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.NotFound("booking", id)
	}
	if err != nil {
		return nil, errs.Store("get booking", err)
	}
	return &b, nil
}

func (r *PGRepo) CancelBooking(ctx context.Context, id int64) (bool, error) {
	var status string
	err := r.pool.QueryRow(ctx, `
		WITH upd AS (
			UPDATE bookings SET status='cancelled' WHERE id=$1 AND status='confirmed' RETURNING id
		)
		SELECT CASE WHEN EXISTS (SELECT 1 FROM upd) THEN 'changed' ELSE b.status END
		FROM bookings b WHERE b.id=$1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, errs.NotFound("booking", id)
	}
	if err != nil {
		return false, errs.Store("cancel booking", err)
	}
	return status == "changed", nil
}

const viewColumns = `
	SELECT b.id, b.day, b.start_time, b.end_time, s.name, s.duration_min, m.name, c.name, c.phone
	FROM bookings b
	JOIN services s ON s.id = b.service_id
	JOIN masters  m ON m.id = b.master_id
	JOIN clients  c ON c.id = b.client_id
`

func (r *PGRepo) ListClientBookings(ctx context.Context, clientID int64) ([]model.BookingView, error) {
	return r.listViews(ctx, viewColumns+`
		WHERE b.client_id=$1 AND b.status='confirmed'
		ORDER BY b.day, b.start_time`, clientID)
}

func (r *PGRepo) ListBookings(ctx context.Context, from, to *time.Time) ([]model.BookingView, error) {
	var lo, hi *time.Time
	if from != nil {
		d := slots.Day(*from)
		lo = &d
	}
	if to != nil {
		d := slots.Day(*to)
		hi = &d
	}
	return r.listViews(ctx, viewColumns+`
		WHERE b.status='confirmed'
		  AND ($1::date IS NULL OR b.day >= $1::date)
		  AND ($2::date IS NULL OR b.day <= $2::date)
		ORDER BY b.day, b.start_time`, lo, hi)
}

func (r *PGRepo) listViews(ctx context.Context, q string, args ...any) ([]model.BookingView, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errs.Store("list bookings", err)
	}
	defer rows.Close()
	var out []model.BookingView
	for rows.Next() {
		var (
			v          model.BookingView
			start, end string
		)
		if err := rows.Scan(&v.ID, &v.Day, &start, &end, &v.ServiceName, &v.DurationMin, &v.MasterName, &v.ClientName, &v.ClientPhone); err != nil {
			return nil, errs.Store("scan booking", err)
		}
		if v.StartTime, v.EndTime, err = parseClocks(start, end); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Store("list bookings", err)
	}
	return out, nil
}
