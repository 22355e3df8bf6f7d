package handlers

import (
	"log"
	"net/http"
	"time"

	"clinicflow/internal/clinicerr"
	"clinicflow/internal/services"
	"clinicflow/internal/store"

	"github.com/gin-gonic/gin"
)

// Handler bundles the services the HTTP surface dispatches into.
type Handler struct {
	store      *store.Store
	booking    *services.BookingCoordinator
	attendance *services.AttendanceService
	demand     *services.DemandEngine
	telegram   *services.TelegramNotifier // nil when BOT_TOKEN is unset
	loc        *time.Location
}

func New(
	st *store.Store,
	booking *services.BookingCoordinator,
	attendance *services.AttendanceService,
	demand *services.DemandEngine,
	telegram *services.TelegramNotifier,
	loc *time.Location,
) *Handler {
	return &Handler{
		store:      st,
		booking:    booking,
		attendance: attendance,
		demand:     demand,
		telegram:   telegram,
		loc:        loc,
	}
}

// handleError logs the error and answers with the status the taxonomy maps
// it to.
func handleError(c *gin.Context, err error) {
	log.Printf("Error: %v", err)
	status := clinicerr.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.JSON(status, gin.H{"error": message})
}

// badRequest is for validation failures caught before any service runs.
func badRequest(c *gin.Context, message string, err error) {
	log.Printf("Error: %s: %v", message, err)
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// HomeHandler handles requests to the root path "/"
func (h *Handler) HomeHandler(c *gin.Context) {
	c.String(http.StatusOK, "Clinic appointment service")
}

// HealthHandler is a simple health check endpoint
func (h *Handler) HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
