package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"event-checkin-backend/internal/checkin"
)

type scanRequest struct {
	TagID    string `json:"tagId"`
	Location string `json:"location"`
}

// Scan is the universal reader endpoint for gates and the cafeteria.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "msg": "invalid request", "beep": checkin.BeepError})
		return
	}

	d, err := h.authorizer.Scan(c.Request.Context(), req.TagID, req.Location)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scanResponse(d))
}

func scanResponse(d checkin.Decision) gin.H {
	resp := gin.H{"status": string(d.Outcome), "beep": d.Beep()}
	if d.Name != "" {
		resp["name"] = d.Name
	}
	if d.Allowed() {
		resp["msg"] = d.Message
		if d.CreditsRemaining != nil {
			resp["creditsRemaining"] = *d.CreditsRemaining
		}
	} else {
		resp["reason"] = string(d.Reason)
	}
	return resp
}

// IssueMeal lets staff redeem a meal for a tag without a reader.
func (h *Handler) IssueMeal(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request")
		return
	}

	d, err := h.authorizer.IssueMeal(c.Request.Context(), req.TagID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !d.Allowed() {
		c.JSON(http.StatusOK, gin.H{"status": "denied", "reason": string(d.Reason), "name": d.Name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "name": d.Name, "remaining": *d.CreditsRemaining})
}
