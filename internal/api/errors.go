package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"auction-service/internal/models"
)

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAuctionClosed),
		errors.Is(err, models.ErrAuctionExpired),
		errors.Is(err, models.ErrItemAlreadyListed):
		return http.StatusConflict
	case errors.Is(err, models.ErrBidTooLow),
		errors.Is(err, models.ErrSelfBidForbidden),
		errors.Is(err, models.ErrInvalidPrice),
		errors.Is(err, models.ErrInvalidEndTime):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrStorageFailure):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)

	message := err.Error()
	if !models.IsRejection(err) {
		// storage details stay in the logs
		message = "Auction service temporarily unavailable"
	}

	c.JSON(status, gin.H{
		"error":  message,
		"reason": models.RejectionReason(err),
	})
}

// bindJSON decodes and validates the body, answering 400 on failure
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = validationMessage(fe)
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"reason":  "invalid_request",
			"details": details,
		})
		return false
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"reason":  "invalid_request",
		"details": err.Error(),
	})
	return false
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "gt":
		return "should be greater than " + fe.Param()
	case "gte", "min":
		return "should be greater or equal than " + fe.Param()
	case "lte", "max":
		return "should be less or equal than " + fe.Param()
	}
	return "incorrect value passed"
}
