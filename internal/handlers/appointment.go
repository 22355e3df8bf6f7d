package handlers

import (
	"fmt"
	"net/http"
	"time"

	"clinicflow/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// AddAppointments creates slots from a shape that depends on which fields
// are present: a single slot, one slot per day, or a per-day grid at the
// requested interval.
func (h *Handler) AddAppointments(c *gin.Context) {
	var req models.AddAppointmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return
	}

	startDate, err := time.ParseInLocation(dateLayout, req.StartDate, h.loc)
	if err != nil {
		badRequest(c, "startDate must be YYYY-MM-DD", err)
		return
	}
	endDate := startDate
	if req.EndDate != "" {
		endDate, err = time.ParseInLocation(dateLayout, req.EndDate, h.loc)
		if err != nil {
			badRequest(c, "endDate must be YYYY-MM-DD", err)
			return
		}
	}
	if endDate.Before(startDate) {
		badRequest(c, "endDate is before startDate", nil)
		return
	}

	interval := req.IntervalMinutes
	if interval <= 0 {
		interval = 60
	}

	var slots []models.Appointment
	addSlot := func(at time.Time) {
		slots = append(slots, models.Appointment{
			ID:         uuid.New().String(),
			DoctorName: req.DoctorName,
			Date:       at,
			Status:     models.StatusAvailable,
			Reminders:  models.ReminderList{},
		})
	}

	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		start := time.Date(day.Year(), day.Month(), day.Day(), req.StartHour, req.StartMinute, 0, 0, h.loc)
		if req.EndHour == nil {
			addSlot(start)
			continue
		}
		end := time.Date(day.Year(), day.Month(), day.Day(), *req.EndHour, req.EndMinute, 0, 0, h.loc)
		if !end.After(start) {
			badRequest(c, "end time is not after start time", nil)
			return
		}
		for at := start; at.Before(end); at = at.Add(time.Duration(interval) * time.Minute) {
			addSlot(at)
		}
	}

	if err := h.store.CreateAppointments(slots); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"created": len(slots), "slots": slots})
}

// DeleteAppointment removes a slot and drops any timers still armed for it.
func (h *Handler) DeleteAppointment(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteAppointment(id); err != nil {
		handleError(c, err)
		return
	}
	h.booking.CancelJobs(id)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// GetAvailableAppointments lists open slots.
func (h *Handler) GetAvailableAppointments(c *gin.Context) {
	status := models.StatusAvailable
	appts, err := h.store.ListAppointments(&status)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": appts})
}

// GetBookedAppointments lists booked slots.
func (h *Handler) GetBookedAppointments(c *gin.Context) {
	status := models.StatusBooked
	appts, err := h.store.ListAppointments(&status)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": appts})
}

// GetAllAppointments lists every slot regardless of status.
func (h *Handler) GetAllAppointments(c *gin.Context) {
	appts, err := h.store.ListAppointments(nil)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": appts})
}

// BookAppointment runs the booking protocol for one slot.
func (h *Handler) BookAppointment(c *gin.Context) {
	var req models.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return
	}

	appt, instantText, err := h.booking.Book(c.Param("id"), req.UserName, req.Phone)
	if err != nil {
		handleError(c, err)
		return
	}

	resp := gin.H{"appointment": appt}
	if instantText != "" {
		resp["instant_message"] = instantText
	}
	c.JSON(http.StatusOK, resp)
}

// SetAppointmentStatus resolves a booked appointment to attended or missed.
func (h *Handler) SetAppointmentStatus(c *gin.Context) {
	var req models.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return
	}

	if err := h.attendance.SetStatus(c.Param("id"), models.AppointmentStatus(req.Status), false); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}
