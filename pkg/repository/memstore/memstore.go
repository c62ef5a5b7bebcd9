// Package memstore is an in-memory model.Repo. It keeps the same uniqueness rules
// as the PostgreSQL schema and serializes WithinDay per (master, date).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

type dayKey struct {
	masterID int64
	day      time.Time
}

type Repo struct {
	mu sync.RWMutex

	services  []model.Service
	masters   []model.Master
	clients   []model.Client
	schedules map[dayKey]model.Schedule
	bookings  []model.Booking
	nextID    int64

	locksMu  sync.Mutex
	dayLocks map[dayKey]*sync.Mutex
}

func New() *Repo {
	return &Repo{
		schedules: make(map[dayKey]model.Schedule),
		dayLocks:  make(map[dayKey]*sync.Mutex),
	}
}

func (r *Repo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *Repo) ListServices(_ context.Context) ([]model.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Service(nil), r.services...), nil
}

func (r *Repo) GetService(_ context.Context, id int64) (*model.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.services {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, errs.NotFound("service", id)
}

func (r *Repo) ListMasters(_ context.Context) ([]model.Master, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Master(nil), r.masters...), nil
}

func (r *Repo) GetMaster(_ context.Context, id int64) (*model.Master, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.masters {
		if m.ID == id {
			m := m
			return &m, nil
		}
	}
	return nil, errs.NotFound("master", id)
}

func (r *Repo) SeedCatalog(_ context.Context, services []model.Service, masters []model.Master) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.services) > 0 {
		return false, nil
	}
	seen := make(map[string]bool, len(services))
	for _, s := range services {
		if seen[s.Name] {
			return false, errs.New("duplicate service name").Arg("name", s.Name).Kind(errs.ErrDuplicate)
		}
		seen[s.Name] = true
	}
	for _, s := range services {
		s.ID = r.id()
		r.services = append(r.services, s)
	}
	for _, m := range masters {
		m.ID = r.id()
		r.masters = append(r.masters, m)
	}
	return true, nil
}

func (r *Repo) GetSchedule(_ context.Context, masterID int64, day time.Time) (*model.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schedule(masterID, day), nil
}

func (r *Repo) schedule(masterID int64, day time.Time) *model.Schedule {
	s, ok := r.schedules[dayKey{masterID, slots.Day(day)}]
	if !ok {
		return nil
	}
	return &s
}

func (r *Repo) ListScheduleDays(_ context.Context, masterID int64, from, to time.Time) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	from, to = slots.Day(from), slots.Day(to)
	var out []time.Time
	for k := range r.schedules {
		if k.masterID == masterID && !k.day.Before(from) && !k.day.After(to) {
			out = append(out, k.day)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *Repo) InsertSchedules(_ context.Context, rows []model.Schedule) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range rows {
		s.Day = slots.Day(s.Day)
		k := dayKey{s.MasterID, s.Day}
		if _, ok := r.schedules[k]; ok {
			continue
		}
		s.ID = r.id()
		r.schedules[k] = s
		n++
	}
	return n, nil
}

func (r *Repo) ListConfirmedBookings(_ context.Context, masterID int64, day time.Time) ([]model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.confirmed(masterID, day), nil
}

func (r *Repo) confirmed(masterID int64, day time.Time) []model.Booking {
	day = slots.Day(day)
	var out []model.Booking
	for _, b := range r.bookings {
		if b.MasterID == masterID && b.Day.Equal(day) && b.Status == model.StatusConfirmed {
			out = append(out, b)
		}
	}
	return out
}

func (r *Repo) GetClient(_ context.Context, id int64) (*model.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, errs.NotFound("client", id)
}

func (r *Repo) FindClientByPhone(_ context.Context, phone string) (*model.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if c.Phone == phone {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (r *Repo) FindClientByExternalID(_ context.Context, externalID int64) (*model.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if c.ExternalID != nil && *c.ExternalID == externalID {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (r *Repo) InsertClient(_ context.Context, c model.Client) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.clients {
		if existing.Phone == c.Phone {
			return 0, errs.New("client phone taken").Arg("phone", c.Phone).Kind(errs.ErrDuplicate)
		}
		if c.ExternalID != nil && existing.ExternalID != nil && *existing.ExternalID == *c.ExternalID {
			return 0, errs.New("client external id taken").Arg("external_id", *c.ExternalID).Kind(errs.ErrDuplicate)
		}
	}
	c.ID = r.id()
	r.clients = append(r.clients, c)
	return c.ID, nil
}

func (r *Repo) dayLock(k dayKey) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.dayLocks[k]
	if !ok {
		l = &sync.Mutex{}
		r.dayLocks[k] = l
	}
	return l
}

func (r *Repo) WithinDay(ctx context.Context, masterID int64, day time.Time, fn func(ctx context.Context, tx model.DayTx) error) error {
	k := dayKey{masterID, slots.Day(day)}
	l := r.dayLock(k)
	l.Lock()
	defer l.Unlock()

	tx := &dayTx{repo: r, key: k}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// Inserts become visible only once fn succeeds.
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings = append(r.bookings, tx.pending...)
	return nil
}

func (r *Repo) GetBooking(_ context.Context, id int64) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bookings {
		if b.ID == id {
			b := b
			return &b, nil
		}
	}
	return nil, errs.NotFound("booking", id)
}

func (r *Repo) CancelBooking(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.bookings {
		if r.bookings[i].ID != id {
			continue
		}
		if r.bookings[i].Status == model.StatusCancelled {
			return false, nil
		}
		r.bookings[i].Status = model.StatusCancelled
		return true, nil
	}
	return false, errs.NotFound("booking", id)
}

func (r *Repo) ListClientBookings(_ context.Context, clientID int64) ([]model.BookingView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.BookingView
	for _, b := range r.bookings {
		if b.ClientID == clientID && b.Status == model.StatusConfirmed {
			out = append(out, r.view(b))
		}
	}
	sortViews(out)
	return out, nil
}

func (r *Repo) ListBookings(_ context.Context, from, to *time.Time) ([]model.BookingView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.BookingView
	for _, b := range r.bookings {
		if b.Status != model.StatusConfirmed {
			continue
		}
		if from != nil && b.Day.Before(slots.Day(*from)) {
			continue
		}
		if to != nil && b.Day.After(slots.Day(*to)) {
			continue
		}
		out = append(out, r.view(b))
	}
	sortViews(out)
	return out, nil
}

func (r *Repo) view(b model.Booking) model.BookingView {
	v := model.BookingView{ID: b.ID, Day: b.Day, StartTime: b.StartTime, EndTime: b.EndTime}
	for _, s := range r.services {
		if s.ID == b.ServiceID {
			v.ServiceName, v.DurationMin = s.Name, s.DurationMin
		}
	}
	for _, m := range r.masters {
		if m.ID == b.MasterID {
			v.MasterName = m.Name
		}
	}
	for _, c := range r.clients {
		if c.ID == b.ClientID {
			v.ClientName, v.ClientPhone = c.Name, c.Phone
		}
	}
	return v
}

func sortViews(v []model.BookingView) {
	sort.Slice(v, func(i, j int) bool {
		if !v[i].Day.Equal(v[j].Day) {
			return v[i].Day.Before(v[j].Day)
		}
		return v[i].StartTime < v[j].StartTime
	})
}

// dayTx buffers inserts until WithinDay commits them.
type dayTx struct {
	repo    *Repo
	key     dayKey
	pending []model.Booking
}

func (t *dayTx) Schedule(_ context.Context) (*model.Schedule, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.schedule(t.key.masterID, t.key.day), nil
}

func (t *dayTx) ConfirmedBookings(_ context.Context) ([]model.Booking, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	out := t.repo.confirmed(t.key.masterID, t.key.day)
	return append(out, t.pending...), nil
}

func (t *dayTx) InsertBooking(_ context.Context, b model.Booking) (int64, error) {
	if b.MasterID != t.key.masterID || !slots.Day(b.Day).Equal(t.key.day) {
		return 0, errs.New("booking outside transaction partition").Kind(errs.ErrStore)
	}
	b.Day = t.key.day
	// Ids are drawn like a sequence: a rolled back insert leaves a gap.
	t.repo.mu.Lock()
	b.ID = t.repo.id()
	t.repo.mu.Unlock()
	t.pending = append(t.pending, b)
	return b.ID, nil
}
