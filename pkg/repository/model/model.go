package model

import (
	"context"
	"time"

	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
)

type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

type Client struct {
	ID         int64
	Name       string
	Phone      string
	ExternalID *int64 // Telegram user id
}

type Service struct {
	ID          int64
	Name        string
	DurationMin int
	Price       int
}

type Master struct {
	ID             int64
	Name           string
	Specialization string
}

// Schedule is the working window of one master on one date.
type Schedule struct {
	ID        int64
	MasterID  int64
	Day       time.Time // civil date, midnight UTC
	WorkStart slots.Clock
	WorkEnd   slots.Clock
}

func (s Schedule) Window() slots.Window {
	return slots.Window{Start: s.WorkStart, End: s.WorkEnd}
}

type Booking struct {
	ID        int64
	ClientID  int64
	ServiceID int64
	MasterID  int64
	Day       time.Time
	StartTime slots.Clock
	EndTime   slots.Clock
	Status    BookingStatus
}

func (b Booking) Interval() slots.Interval {
	return slots.Interval{Start: b.StartTime, End: b.EndTime}
}

// BookingView is a booking joined with the names a client or admin needs to see.
type BookingView struct {
	ID          int64
	Day         time.Time
	StartTime   slots.Clock
	EndTime     slots.Clock
	ServiceName string
	DurationMin int
	MasterName  string
	ClientName  string
	ClientPhone string
}

// DayTx is the store handle for one (master, date) partition. Implementations
// serialize every DayTx on the same partition.
type DayTx interface {
	Schedule(ctx context.Context) (*Schedule, error) // nil when the master does not work that day
	ConfirmedBookings(ctx context.Context) ([]Booking, error)
	InsertBooking(ctx context.Context, b Booking) (int64, error)
}

type Repo interface {
	// Каталоги
	ListServices(ctx context.Context) ([]Service, error)
	GetService(ctx context.Context, id int64) (*Service, error)
	ListMasters(ctx context.Context) ([]Master, error)
	GetMaster(ctx context.Context, id int64) (*Master, error)
	SeedCatalog(ctx context.Context, services []Service, masters []Master) (bool, error)

	// Расписание
	GetSchedule(ctx context.Context, masterID int64, day time.Time) (*Schedule, error)
	ListScheduleDays(ctx context.Context, masterID int64, from, to time.Time) ([]time.Time, error)
	InsertSchedules(ctx context.Context, rows []Schedule) (int, error)
	ListConfirmedBookings(ctx context.Context, masterID int64, day time.Time) ([]Booking, error)

	// Клиенты
	GetClient(ctx context.Context, id int64) (*Client, error)
	FindClientByPhone(ctx context.Context, phone string) (*Client, error)
	FindClientByExternalID(ctx context.Context, externalID int64) (*Client, error)
	InsertClient(ctx context.Context, c Client) (int64, error) // errs.ErrDuplicate on phone/external id collision

	// Бронирование
	WithinDay(ctx context.Context, masterID int64, day time.Time, fn func(ctx context.Context, tx DayTx) error) error
	GetBooking(ctx context.Context, id int64) (*Booking, error)
	CancelBooking(ctx context.Context, id int64) (bool, error) // false when it was already cancelled
	ListClientBookings(ctx context.Context, clientID int64) ([]BookingView, error)
	ListBookings(ctx context.Context, from, to *time.Time) ([]BookingView, error)
}
