package main

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/students"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

type renewRequest struct {
	PlanID uuid.UUID `json:"plan_id" binding:"required"`
}

func (h *handlers) createStudent(c *gin.Context) {
	var req students.CreateInput
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.students.CreateStudent(c.Request.Context(), gymID(c), req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, "Student created successfully", models.NewStudentView(s, h.clock.Now()))
}

func (h *handlers) listStudents(c *gin.Context) {
	page, ok := bindPage(c)
	if !ok {
		return
	}
	status := models.MembershipStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		utils.BadRequestResponse(c, "status must be active, inactive or expired")
		return
	}
	result, err := h.students.ListStudents(c.Request.Context(), gymID(c), status, c.Query("search"), page)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Students retrieved successfully", result)
}

func (h *handlers) getStudent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.students.GetStudent(c.Request.Context(), gymID(c), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Student retrieved successfully", view)
}

func (h *handlers) updateStudent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req students.UpdateInput
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.students.UpdateStudent(c.Request.Context(), gymID(c), id, req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Student updated successfully", models.NewStudentView(s, h.clock.Now()))
}

func (h *handlers) deleteStudent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	s, err := h.students.DeleteStudent(c.Request.Context(), gymID(c), id)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Student deactivated successfully", models.NewStudentView(s, h.clock.Now()))
}

func (h *handlers) renewMembership(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req renewRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.students.RenewMembership(c.Request.Context(), gymID(c), id, req.PlanID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Membership renewed successfully", models.NewStudentView(s, h.clock.Now()))
}

func (h *handlers) studentCheckIns(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, ok := bindPage(c)
	if !ok {
		return
	}
	result, err := h.checkins.StudentHistory(c.Request.Context(), gymID(c), id, page)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Check-in history retrieved successfully", result)
}

// runSweep triggers the expiry sweep by hand. The sweeper service is the
// normal trigger.
func (h *handlers) runSweep(c *gin.Context) {
	result, err := h.students.ProcessExpiredMemberships(c.Request.Context())
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.OKResponse(c, "Expiry sweep completed", result)
}
