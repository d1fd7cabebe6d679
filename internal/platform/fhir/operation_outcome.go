package fhir

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// OperationOutcome severity levels per FHIR R4.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes per FHIR R4.
const (
	IssueTypeInvalid      = "invalid"
	IssueTypeRequired     = "required"
	IssueTypeNotFound     = "not-found"
	IssueTypeProcessing   = "processing"
	IssueTypeSecurity     = "security"
	IssueTypeLogin        = "login"
	IssueTypeThrottled    = "throttled"
	IssueTypeNotSupported = "not-supported"
	IssueTypeException    = "exception"
	IssueTypeTimeout      = "timeout"
	IssueTypeTransient    = "transient"
)

// OperationOutcome represents a FHIR OperationOutcome for errors.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeProcessing, diagnostics)
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, resourceType+"/"+id+" not found")
}

// ValidationOutcome creates an OperationOutcome for an invalid field.
func ValidationOutcome(field, message string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    IssueSeverityError,
				Code:        IssueTypeInvalid,
				Diagnostics: fmt.Sprintf("%s: %s", field, message),
				Expression:  []string{field},
			},
		},
	}
}

// LoginOutcome is returned when the identity provider rejected credentials.
func LoginOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeLogin, diagnostics)
}

// TransientOutcome is returned when an upstream is temporarily unavailable.
func TransientOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeTransient, diagnostics)
}

// InternalErrorOutcome creates an OperationOutcome for internal server errors.
func InternalErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityFatal, IssueTypeException, diagnostics)
}

// ThrottleOutcome creates a 429-style OperationOutcome.
func ThrottleOutcome() *OperationOutcome {
	return NewOperationOutcome(
		IssueSeverityError,
		IssueTypeThrottled,
		"Rate limit exceeded. Please retry after a delay.",
	)
}

// HasErrors returns true if the outcome contains any error or fatal issues.
func (o *OperationOutcome) HasErrors() bool {
	for _, issue := range o.Issue {
		if issue.Severity == IssueSeverityError || issue.Severity == IssueSeverityFatal {
			return true
		}
	}
	return false
}

// WriteOutcome responds with status and the outcome as application/fhir+json.
func WriteOutcome(c echo.Context, status int, o *OperationOutcome) error {
	return WriteResource(c, status, o)
}

// ContentTypeFHIRJSON is the FHIR R4 JSON media type.
const ContentTypeFHIRJSON = "application/fhir+json; charset=utf-8"

// WriteResource responds with any FHIR resource as application/fhir+json.
func WriteResource(c echo.Context, status int, resource interface{}) error {
	data, err := json.Marshal(resource)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "encode resource: "+err.Error())
	}
	return c.Blob(status, ContentTypeFHIRJSON, data)
}

// OutcomeStatus picks a default HTTP status for an issue code.
func OutcomeStatus(code string) int {
	switch code {
	case IssueTypeInvalid, IssueTypeRequired:
		return http.StatusBadRequest
	case IssueTypeLogin, IssueTypeSecurity:
		return http.StatusUnauthorized
	case IssueTypeNotFound:
		return http.StatusNotFound
	case IssueTypeThrottled:
		return http.StatusTooManyRequests
	case IssueTypeTransient:
		return http.StatusServiceUnavailable
	case IssueTypeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
