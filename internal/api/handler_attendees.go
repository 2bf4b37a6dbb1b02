package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"event-checkin-backend/internal/checkin"
	"event-checkin-backend/internal/model"
)

type addStudentRequest struct {
	RegistrationID string `json:"registrationId" binding:"required"`
	Name           string `json:"name" binding:"required"`
	Department     string `json:"dept"`
	GraduationYear int    `json:"gradYear"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
}

func (r addStudentRequest) input() checkin.RegisterInput {
	return checkin.RegisterInput{
		RegistrationID: r.RegistrationID,
		Name:           r.Name,
		Department:     r.Department,
		GraduationYear: r.GraduationYear,
		Phone:          r.Phone,
		Address:        r.Address,
	}
}

// AddStudent registers a single attendee without a tag.
func (h *Handler) AddStudent(c *gin.Context) {
	var req addStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request")
		return
	}

	a, err := h.directory.Register(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "msg": fmt.Sprintf("Added %s", a.Name)})
}

type addStudentsRequest struct {
	Students []addStudentRequest `json:"students" binding:"required,dive"`
}

// AddStudents registers a list of attendees, skipping registration ids that already exist.
func (h *Handler) AddStudents(c *gin.Context) {
	var req addStudentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request")
		return
	}

	inputs := make([]checkin.RegisterInput, 0, len(req.Students))
	for _, s := range req.Students {
		inputs = append(inputs, s.input())
	}
	res, err := h.directory.RegisterMany(c.Request.Context(), inputs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "added": res.Added, "skipped": res.Skipped})
}

type bindTagRequest struct {
	RegistrationID string `json:"registrationId" binding:"required"`
	TagID          string `json:"tagId" binding:"required"`
}

// IssueCard binds a blank tag at the entrance desk; the attendee is inside afterwards.
func (h *Handler) IssueCard(c *gin.Context) {
	h.bindTag(c, checkin.BindAtDesk)
}

// LinkCard binds a tag from the staff surface without changing location state.
func (h *Handler) LinkCard(c *gin.Context) {
	h.bindTag(c, checkin.BindByStaff)
}

func (h *Handler) bindTag(c *gin.Context, mode checkin.BindMode) {
	var req bindTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request")
		return
	}

	a, err := h.directory.BindTag(c.Request.Context(), req.RegistrationID, req.TagID, mode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "student": a.Name, "credits": a.MealCredits})
}

type adjustCreditsRequest struct {
	RegistrationID string `json:"registrationId" binding:"required"`
	Delta          int    `json:"delta" binding:"required"`
}

// AdjustCredits adds a (possibly negative) delta to an attendee's meal credits.
func (h *Handler) AdjustCredits(c *gin.Context) {
	var req adjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request")
		return
	}

	a, err := h.directory.AdjustMealCredits(c.Request.Context(), req.RegistrationID, req.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "credits": a.MealCredits})
}

type tagRequest struct {
	TagID string `json:"tagId" binding:"required"`
}

// CheckStatus returns the read-only view staff see for a tag.
func (h *Handler) CheckStatus(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request")
		return
	}

	view, err := h.directory.Status(c.Request.Context(), req.TagID)
	if err != nil {
		if errors.Is(err, checkin.ErrNotFound) {
			err = checkin.ErrUnknownTag
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": view})
}

type logView struct {
	ID          string    `json:"id"`
	Location    string    `json:"location"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type attendeeView struct {
	RegistrationID string    `json:"registrationId"`
	Name           string    `json:"name"`
	Department     string    `json:"dept"`
	GraduationYear int       `json:"gradYear"`
	TagID          *string   `json:"tagId"`
	MealCredits    int       `json:"mealCredits"`
	IsInside       bool      `json:"isInside"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address"`
	Logs           []logView `json:"logs"`
}

// GetAttendee returns an attendee with unsealed contact details and the audit trail.
func (h *Handler) GetAttendee(c *gin.Context) {
	a, logs, err := h.directory.History(c.Request.Context(), c.Param("registrationId"))
	if err != nil {
		respondError(c, err)
		return
	}
	contact, err := h.directory.Contact(a)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": newAttendeeView(a, contact, logs)})
}

func newAttendeeView(a *model.Attendee, contact checkin.Contact, logs []model.AuditLog) attendeeView {
	view := attendeeView{
		RegistrationID: a.RegistrationID,
		Name:           a.Name,
		Department:     a.Department,
		GraduationYear: a.GraduationYear,
		TagID:          a.TagID,
		MealCredits:    a.MealCredits,
		IsInside:       a.IsInside,
		Phone:          contact.Phone,
		Address:        contact.Address,
		Logs:           make([]logView, 0, len(logs)),
	}
	for _, l := range logs {
		view.Logs = append(view.Logs, logView{
			ID:          l.UUID,
			Location:    l.Location,
			Action:      l.Action,
			Description: l.Description,
			CreatedAt:   l.CreatedAt,
		})
	}
	return view
}
