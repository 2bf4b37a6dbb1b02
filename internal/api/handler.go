package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"event-checkin-backend/internal/checkin"
	"event-checkin-backend/internal/mw"
	"event-checkin-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	directory  *checkin.Directory
	authorizer *checkin.Authorizer
	webpush    *webpush.Options
	gatherer   prometheus.Gatherer
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, directory *checkin.Directory, authorizer *checkin.Authorizer, webpushOptions *webpush.Options, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		store:      s,
		directory:  directory,
		authorizer: authorizer,
		webpush:    webpushOptions,
		gatherer:   gatherer,
	}
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"status": "error", "msg": msg})
}

// respondError maps domain errors to status codes. Anything unrecognized is logged and
// answered with a generic 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, checkin.ErrInvalidLocation):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "reason": "INVALID_LOCATION", "msg": "Invalid Location ID", "beep": checkin.BeepError})
	case errors.Is(err, checkin.ErrDuplicateID):
		fail(c, http.StatusBadRequest, "Registration ID already exists")
	case errors.Is(err, checkin.ErrTagAlreadyBound):
		fail(c, http.StatusBadRequest, "This Tag is already assigned!")
	case errors.Is(err, checkin.ErrNegativeCredits):
		fail(c, http.StatusBadRequest, "Meal credits cannot go below zero")
	case errors.Is(err, checkin.ErrInvalidInput):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkin.ErrNotFound):
		fail(c, http.StatusNotFound, "Student not found in list")
	case errors.Is(err, checkin.ErrUnknownTag):
		fail(c, http.StatusNotFound, "Unregistered tag")
	default:
		mw.GetRequestLogger(c).WithError(err).Error("request failed")
		fail(c, http.StatusInternalServerError, "internal server error")
	}
}
