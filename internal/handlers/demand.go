package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"clinicflow/internal/models"

	"github.com/gin-gonic/gin"
)

const defaultBaselineThreshold = 3

// SetupHighDemand replaces a doctor's admin baseline for one month.
func (h *Handler) SetupHighDemand(c *gin.Context) {
	var req models.SetupHighDemandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("Invalid input: %s", err.Error()), err)
		return
	}

	threshold := req.HighDemandThreshold
	if threshold <= 0 {
		threshold = defaultBaselineThreshold
	}

	if err := h.demand.SetBaseline(req.DoctorName, req.Year, req.Month, req.Hours, threshold); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"doctorName": req.DoctorName,
		"year":       req.Year,
		"month":      req.Month,
		"hours":      req.Hours,
		"threshold":  threshold,
	})
}

// GetHighDemand returns a doctor's month of demand cells plus a summary of
// which hours currently gate AtRisk bookings.
func (h *Handler) GetHighDemand(c *gin.Context) {
	doctor := c.Query("doctorName")
	year, errY := strconv.Atoi(c.Query("year"))
	month, errM := strconv.Atoi(c.Query("month"))
	if doctor == "" || errY != nil || errM != nil || month < 1 || month > 12 {
		badRequest(c, "doctorName, year and month query parameters are required", nil)
		return
	}

	cells, err := h.store.ListDemandCellsForMonth(doctor, year, month)
	if err != nil {
		handleError(c, err)
		return
	}

	hourSet := map[int]bool{}
	for _, cell := range cells {
		if cell.HighDemand() {
			hourSet[cell.Hour] = true
		}
	}
	hours := make([]int, 0, len(hourSet))
	for hour := 0; hour < 24; hour++ {
		if hourSet[hour] {
			hours = append(hours, hour)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"cells": cells,
		"summary": models.DemandSummary{
			TotalSlots:      len(cells),
			HighDemandHours: hours,
		},
	})
}
