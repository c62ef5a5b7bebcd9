package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salon",
			Name:      "booking_created_total",
			Help:      "Count of confirmed bookings created.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salon",
			Name:      "booking_conflicts_total",
			Help:      "Count of booking attempts rejected because the slot was no longer free.",
		},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salon",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings moved to cancelled.",
		},
	)

	clientsRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salon",
			Name:      "clients_registered_total",
			Help:      "Count of client registrations by outcome.",
		},
		[]string{"outcome"},
	)

	slotQueries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salon",
			Name:      "slot_queries_total",
			Help:      "Count of availability computations.",
		},
	)
)

// Register registers metrics with the default registry (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingConflicts, bookingCancelled, clientsRegistered, slotQueries)
	})
}

func IncBookingCreated() {
	bookingCreated.Inc()
}

func IncBookingConflict() {
	bookingConflicts.Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

// IncClientRegistered counts a registration; outcome is "created" or "existing".
func IncClientRegistered(outcome string) {
	clientsRegistered.WithLabelValues(outcome).Inc()
}

func IncSlotQuery() {
	slotQueries.Inc()
}
