package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tomxwilliam/studioportal/internal/auth"
	checkoutdomain "github.com/tomxwilliam/studioportal/internal/checkout/domain"
	customerdomain "github.com/tomxwilliam/studioportal/internal/customer/domain"
	domainsdomain "github.com/tomxwilliam/studioportal/internal/domains/domain"
	hostingdomain "github.com/tomxwilliam/studioportal/internal/hosting/domain"
	"github.com/tomxwilliam/studioportal/internal/hostingapi"
	invoicedomain "github.com/tomxwilliam/studioportal/internal/invoice/domain"
	notificationdomain "github.com/tomxwilliam/studioportal/internal/notification/domain"
	"github.com/tomxwilliam/studioportal/internal/payment"
	pricingdomain "github.com/tomxwilliam/studioportal/internal/pricing/domain"
	quotedomain "github.com/tomxwilliam/studioportal/internal/quote/domain"
	"github.com/tomxwilliam/studioportal/internal/registrar"
	ticketdomain "github.com/tomxwilliam/studioportal/internal/ticket/domain"
)

// APIError is the wire shape of every failure. Customer-facing messages
// stay generic; the full cause is logged server-side by AbortWithError.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

var (
	ErrInvalidRequest = &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "The request body could not be parsed."}
	ErrUnauthorized   = &APIError{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "Authentication required."}
	ErrForbidden      = &APIError{Status: http.StatusForbidden, Code: "forbidden", Message: "You do not have access to this resource."}
	ErrNotFound       = &APIError{Status: http.StatusNotFound, Code: "not_found", Message: "The requested resource was not found."}
	ErrConflict       = &APIError{Status: http.StatusConflict, Code: "conflict", Message: "The resource is not in a state that allows this operation."}
	ErrUpstream       = &APIError{Status: http.StatusBadGateway, Code: "upstream_failed", Message: "An upstream provider request failed. Please try again."}
	ErrInternal       = &APIError{Status: http.StatusInternalServerError, Code: "internal", Message: "Something went wrong."}
)

func newValidationError(message string) *APIError {
	return &APIError{Status: http.StatusUnprocessableEntity, Code: "validation_failed", Message: message}
}

// classify maps domain sentinel errors onto the API error taxonomy. Unknown
// errors become a generic internal failure so upstream error text never
// leaks to customers.
func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return ErrUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return ErrForbidden

	case errors.Is(err, domainsdomain.ErrDomainNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, hostingdomain.ErrSubscriptionNotFound),
		errors.Is(err, hostingdomain.ErrPackageNotFound),
		errors.Is(err, quotedomain.ErrQuoteNotFound),
		errors.Is(err, ticketdomain.ErrTicketNotFound),
		errors.Is(err, pricingdomain.ErrTLDNotFound),
		errors.Is(err, notificationdomain.ErrNotificationNotFound),
		errors.Is(err, customerdomain.ErrCustomerNotFound),
		errors.Is(err, customerdomain.ErrUserNotFound):
		return ErrNotFound

	case errors.Is(err, hostingdomain.ErrInvalidTransition),
		errors.Is(err, invoicedomain.ErrAlreadyPaid),
		errors.Is(err, invoicedomain.ErrNotPending),
		errors.Is(err, quotedomain.ErrNotPending),
		errors.Is(err, quotedomain.ErrQuoteExpired),
		errors.Is(err, customerdomain.ErrEmailInUse):
		return ErrConflict

	case errors.Is(err, domainsdomain.ErrInvalidYears),
		errors.Is(err, domainsdomain.ErrInvalidName),
		errors.Is(err, domainsdomain.ErrMissingContact),
		errors.Is(err, hostingdomain.ErrInvalidCycle),
		errors.Is(err, ticketdomain.ErrInvalidPriority),
		errors.Is(err, ticketdomain.ErrInvalidStatus),
		errors.Is(err, ticketdomain.ErrEmptyMessage),
		errors.Is(err, checkoutdomain.ErrDomainRequired),
		errors.Is(err, customerdomain.ErrMissingField):
		return newValidationError(err.Error())

	case errors.Is(err, registrar.ErrUnavailable):
		return &APIError{Status: http.StatusConflict, Code: "domain_unavailable", Message: "The domain is not available for registration."}
	case errors.Is(err, registrar.ErrInvalidDomain):
		return newValidationError("The domain name is not valid.")

	case errors.Is(err, registrar.ErrRequestFailed),
		errors.Is(err, hostingapi.ErrRequestFailed),
		errors.Is(err, hostingapi.ErrAccountNotFound),
		errors.Is(err, payment.ErrRequestFailed):
		return ErrUpstream
	}

	return ErrInternal
}

// AbortWithError ends the request with the mapped status and writes the
// original error into the gin error list for the logging middleware.
func AbortWithError(c *gin.Context, err error) {
	apiErr := classify(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
}
