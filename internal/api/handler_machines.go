package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"simrig-booking-backend/internal/model"
	"simrig-booking-backend/internal/schedule"
)

// ListMachines handles GET /api/machines.
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, machines)
}

// ListAvailableMachines handles GET /api/machines/available.
func (h *Handler) ListAvailableMachines(c *gin.Context) {
	machines, err := h.store.ListAvailableMachines(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, machines)
}

type putMachineRequest struct {
	Name       string               `json:"name" binding:"required"`
	IsActive   *bool                `json:"is_active"`
	Position   int                  `json:"position"`
	HourlyRate *decimal.NullDecimal `json:"hourly_rate"`
}

// PutMachine handles PUT /api/machines/:id. A new machine starts available.
func (h *Handler) PutMachine(c *gin.Context) {
	var req putMachineRequest
	if !h.bind(c, &req) {
		return
	}
	m := &model.Machine{
		ID:       c.Param("id"),
		Name:     req.Name,
		IsActive: true,
		Status:   model.MachineAvailable,
		Position: req.Position,
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
	if req.HourlyRate != nil {
		if req.HourlyRate.Valid && req.HourlyRate.Decimal.IsNegative() {
			h.badRequest(c, "hourly rate must not be negative")
			return
		}
		m.HourlyRate = *req.HourlyRate
	}

	if err := h.store.SaveMachine(c.Request.Context(), m); err != nil {
		h.fail(c, err)
		return
	}
	saved, err := h.store.GetMachine(c.Request.Context(), m.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, saved)
}

type patchMachineStatusRequest struct {
	Status model.MachineStatus `json:"status" binding:"required"`
}

// PatchMachineStatus handles PATCH /api/machines/:id/status, the operator's
// maintenance switch.
func (h *Handler) PatchMachineStatus(c *gin.Context) {
	var req patchMachineStatusRequest
	if !h.bind(c, &req) {
		return
	}
	m, err := h.sessions.SetMaintenance(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, m)
}

// GetSchedule handles GET /api/machines/:id/schedule?date=&tz=&at=.
func (h *Handler) GetSchedule(c *gin.Context) {
	ref, err := h.referenceTime(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	day, err := h.engine.DaySchedule(c.Request.Context(), schedule.DayQuery{
		MachineID:        c.Param("id"),
		Date:             c.Query("date"),
		Timezone:         c.Query("tz"),
		ReferenceTime:    ref,
		ViewerCustomerID: h.requester(c).CustomerID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, day)
}

// GetAvailability handles GET /api/machines/:id/availability?date=&start=&duration=&tz=.
func (h *Handler) GetAvailability(c *gin.Context) {
	duration, err := intQuery(c, "duration", h.engine.SlotMinutes())
	if err != nil {
		h.fail(c, err)
		return
	}
	ref, err := h.referenceTime(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	available, err := h.engine.IsSlotAvailable(c.Request.Context(), schedule.SlotQuery{
		MachineID:       c.Param("id"),
		Date:            c.Query("date"),
		StartTime:       c.Query("start"),
		DurationMinutes: duration,
		Timezone:        c.Query("tz"),
		ReferenceTime:   ref,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"available": available})
}

// GetFreeStarts handles GET /api/machines/:id/free-starts?date=&duration=&tz=.
func (h *Handler) GetFreeStarts(c *gin.Context) {
	duration, err := intQuery(c, "duration", h.engine.SlotMinutes())
	if err != nil {
		h.fail(c, err)
		return
	}
	ref, err := h.referenceTime(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	starts, err := h.engine.FreeStartTimes(c.Request.Context(), schedule.FreeStartsQuery{
		MachineID:       c.Param("id"),
		Date:            c.Query("date"),
		DurationMinutes: duration,
		Timezone:        c.Query("tz"),
		ReferenceTime:   ref,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"start_times": starts})
}

// GetAvailableDates handles GET /api/available-dates?from=&days=&machine_id=.
func (h *Handler) GetAvailableDates(c *gin.Context) {
	days, err := intQuery(c, "days", 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	ref, err := h.referenceTime(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	dates, err := h.engine.AvailableDates(c.Request.Context(), schedule.DatesQuery{
		From:          c.Query("from"),
		Days:          days,
		MachineID:     c.Query("machine_id"),
		ReferenceTime: ref,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dates)
}
