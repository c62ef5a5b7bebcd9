package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/workwork-1/projectbotsalon/pkg/domain/booking"
	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/export"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

type serviceJSON struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DurationMin int    `json:"durationMin"`
	Price       int    `json:"price"`
}

type masterJSON struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
}

type bookingJSON struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Service     string `json:"service"`
	DurationMin int    `json:"durationMin"`
	Master      string `json:"master"`
	Client      string `json:"client,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// RegisterClientInput defines the expected JSON structure for client registration
type RegisterClientInput struct {
	Name       string `json:"name" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	ExternalID *int64 `json:"externalId"`
}

// CreateBookingInput defines the expected JSON structure for creating a booking
type CreateBookingInput struct {
	ClientID  int64  `json:"clientId" binding:"required"`
	ServiceID int64  `json:"serviceId" binding:"required"`
	MasterID  int64  `json:"masterId" binding:"required"`
	Date      string `json:"date" binding:"required"`
	StartTime string `json:"startTime" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listServices(c *gin.Context) {
	list, err := s.engine.ListServices(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]serviceJSON, 0, len(list))
	for _, v := range list {
		out = append(out, serviceJSON{ID: v.ID, Name: v.Name, DurationMin: v.DurationMin, Price: v.Price})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listMasters(c *gin.Context) {
	list, err := s.engine.ListMasters(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]masterJSON, 0, len(list))
	for _, v := range list {
		out = append(out, masterJSON{ID: v.ID, Name: v.Name, Specialization: v.Specialization})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) availableSlots(c *gin.Context) {
	masterID, ok := pathID(c)
	if !ok {
		return
	}
	duration, err := strconv.Atoi(c.Query("duration"))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "duration must be an integer number of minutes")
		return
	}
	free, err := s.engine.GetAvailableSlots(c.Request.Context(), masterID, c.Query("date"), duration)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, free)
}

func (s *Server) registerClient(c *gin.Context) {
	var input RegisterClientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	id, err := s.engine.RegisterClient(c.Request.Context(), input.Name, input.Phone, input.ExternalID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) resolveClient(c *gin.Context) {
	var externalID *int64
	if raw := c.Query("external_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, "external_id must be an integer")
			return
		}
		externalID = &v
	}
	id, found, err := s.engine.ResolveClient(c.Request.Context(), c.Query("phone"), externalID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"found": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"found": true, "id": id})
}

func (s *Server) clientBookings(c *gin.Context) {
	clientID, ok := pathID(c)
	if !ok {
		return
	}
	list, err := s.engine.ListClientBookings(c.Request.Context(), clientID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingsJSON(list, false))
}

func (s *Server) createBooking(c *gin.Context) {
	var input CreateBookingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	id, err := s.engine.CreateBooking(c.Request.Context(), input.ClientID, input.ServiceID, input.MasterID, input.Date, input.StartTime)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) cancelBooking(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.engine.CancelBooking(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": string(model.StatusCancelled)})
}

func (s *Server) adminBookings(c *gin.Context) {
	list, _, ok := s.periodBookings(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toBookingsJSON(list, true))
}

func (s *Server) adminExport(c *gin.Context) {
	list, period, ok := s.periodBookings(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, "Период: "+string(period), list); err != nil {
		s.logger.Error().Err(err).Msg("export bookings")
		respondWithError(c, http.StatusInternalServerError, "export failed")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(string(period))+`"`)
	c.Header("Content-Length", strconv.Itoa(buf.Len()))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) periodBookings(c *gin.Context) ([]model.BookingView, booking.Period, bool) {
	period, err := booking.ParsePeriod(c.Query("period"))
	if err != nil {
		s.fail(c, err)
		return nil, "", false
	}
	list, err := s.engine.ListBookings(c.Request.Context(), period)
	if err != nil {
		s.fail(c, err)
		return nil, "", false
	}
	return list, period, true
}

func toBookingsJSON(list []model.BookingView, withClient bool) []bookingJSON {
	out := make([]bookingJSON, 0, len(list))
	for _, v := range list {
		b := bookingJSON{
			ID:          v.ID,
			Date:        v.Day.Format(slots.DateLayout),
			StartTime:   v.StartTime.String(),
			EndTime:     v.EndTime.String(),
			Service:     v.ServiceName,
			DurationMin: v.DurationMin,
			Master:      v.MasterName,
		}
		if withClient {
			b.Client, b.Phone = v.ClientName, v.ClientPhone
		}
		out = append(out, b)
	}
	return out
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// fail maps engine error kinds to HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrStore):
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("store failure")
		respondWithError(c, http.StatusInternalServerError, "internal error")
	case errors.Is(err, errs.ErrNotFound):
		respondWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrConflict):
		respondWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrValidation):
		respondWithError(c, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		respondWithError(c, http.StatusInternalServerError, "internal error")
	}
}

func respondWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
