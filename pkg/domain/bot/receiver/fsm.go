package receiver

import (
	"strconv"
	"strings"
)

// ---------- FSM ----------

type State int

const (
	StateStart State = iota
	StateMain
	StateAskName
	StateAskPhone
	StateBookService
	StateBookMaster
	StateBookDate
	StateBookTime
	StateBookConfirm
	StateMy
	StateHelp
)

type BookingData struct {
	ServiceID   int64  `json:"service_id,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	DurationMin int    `json:"duration_min,omitempty"`
	MasterID    int64  `json:"master_id,omitempty"`
	MasterName  string `json:"master_name,omitempty"`
	Date        string `json:"date,omitempty"` // YYYY-MM-DD
	Time        string `json:"time,omitempty"` // HH:MM
}

// Session is the per-user chat state. It is stored as JSON when sessions live in Redis.
type Session struct {
	State   State       `json:"state"`
	History []State     `json:"history,omitempty"`
	Booking BookingData `json:"booking"`

	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	ClientID int64  `json:"client_id,omitempty"`
}

func NewSession() *Session {
	return &Session{State: StateMain}
}

func (s *Session) Go(to State) {
	s.History = append(s.History, s.State)
	s.State = to
}

func (s *Session) Back() {
	if n := len(s.History); n > 0 {
		s.State = s.History[n-1]
		s.History = s.History[:n-1]
	} else {
		s.State = StateMain
	}
}

// ResetFlow drops the booking in progress. The known client id survives.
func (s *Session) ResetFlow() {
	s.State = StateMain
	s.History = s.History[:0]
	s.Booking = BookingData{}
	s.Name, s.Phone = "", ""
}

// ---------- Callback keys ----------

const (
	CbStart = "start"
	CbMain  = "main"
	CbBook  = "book"
	CbMy    = "my"
	CbHelp  = "help"
	CbBack  = "back"
	CbOk    = "confirm"

	PSvc = "svc:" // svc:3
	PM   = "m:"   // m:5
	PD   = "d:"   // d:2025-08-20
	PT   = "t:"   // t:10:30
	PX   = "x:"   // x:17, отмена записи
)

func Is(k, prefix string) (string, bool) {
	if strings.HasPrefix(k, prefix) {
		return strings.TrimPrefix(k, prefix), true
	}
	return "", false
}

// ID parses the numeric payload of a prefixed callback.
func ID(k, prefix string) (int64, bool) {
	v, ok := Is(k, prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ValidPhone accepts digits only, at least ten of them.
func ValidPhone(s string) bool {
	if len(s) < 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
