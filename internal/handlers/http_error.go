package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/airvoyage/reservation-backend/internal/models"
)

// statusByTag maps domain error tags onto HTTP statuses at the API boundary.
var statusByTag = map[models.ErrorTag]int{
	models.TagFlightNotFound:             http.StatusNotFound,
	models.TagBookingNotFound:            http.StatusNotFound,
	models.TagCheckoutNotFound:           http.StatusNotFound,
	models.TagFlightFull:                 http.StatusConflict,
	models.TagOptimisticLocking:          http.StatusConflict,
	models.TagTicketAlreadyIssued:        http.StatusConflict,
	models.TagBookingExpired:             http.StatusGone,
	models.TagBookingStatus:              http.StatusBadRequest,
	models.TagInvalidAmount:              http.StatusBadRequest,
	models.TagCurrencyMismatch:           http.StatusBadRequest,
	models.TagUnsupportedCurrency:        http.StatusBadRequest,
	models.TagMalformedPayload:           http.StatusBadRequest,
	models.TagInvalidRecipient:           http.StatusBadRequest,
	models.TagWebhookAuthentication:      http.StatusUnauthorized,
	models.TagPaymentDeclined:            http.StatusPaymentRequired,
	models.TagRequestTimeout:             http.StatusGatewayTimeout,
	models.TagPaymentApiUnavailable:      http.StatusServiceUnavailable,
	models.TagNotificationApiUnavailable: http.StatusServiceUnavailable,
	models.TagNetworkError:               http.StatusServiceUnavailable,
}

// respondError maps a domain error to its status. Internal failures (5xx
// persistence class) go out sanitized; the detail stays in the log.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	domainErr := models.AsDomainError(err)
	if domainErr == nil {
		logger.WithError(err).Error("Unclassified error on API boundary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status, ok := statusByTag[domainErr.Tag]
	if !ok {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("tag", domainErr.Tag).Error("Internal error on API boundary")
		c.JSON(status, gin.H{"error": "internal error", "_tag": string(domainErr.Tag)})
		return
	}

	body := gin.H{
		"error": domainErr.Message,
		"_tag":  string(domainErr.Tag),
	}
	if len(domainErr.Fields) > 0 {
		body["details"] = domainErr.Fields
	}
	c.JSON(status, body)
}
