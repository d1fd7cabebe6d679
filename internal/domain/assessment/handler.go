package assessment

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sarcrisk/sarcrisk/internal/domain/risk"
	"github.com/sarcrisk/sarcrisk/internal/platform/athena"
	"github.com/sarcrisk/sarcrisk/internal/platform/auth"
	"github.com/sarcrisk/sarcrisk/internal/platform/fhir"
	"github.com/sarcrisk/sarcrisk/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	bearer := auth.RequireBearer()

	api.GET("/sarc-risks/:patient_id", h.GetRisk, bearer)
	api.POST("/assessments", h.CreateAssessment)
	fhirGroup.GET("/Patient/:patient_id/$sarcoma-risk", h.GetRiskBundle, bearer)

	if h.svc.ArchiveEnabled() {
		api.GET("/assessments", h.ListAssessments)
		fhirGroup.GET("/RiskAssessment", h.SearchRiskAssessments)
		fhirGroup.GET("/RiskAssessment/:id", h.ReadRiskAssessment)
	}
}

// -- Request / response types --

type patientPath struct {
	PatientID string `param:"patient_id" validate:"required,fhir_id"`
}

type AssessRequest struct {
	Patient           risk.PatientRecord `json:"patient"`
	SuspectedSubtypes []string           `json:"suspected_subtypes" validate:"omitempty,dive,required"`
	Policy            string             `json:"policy" validate:"score_policy"`
}

type RiskResponse struct {
	PatientID         string  `json:"patient_id"`
	SarcomaRiskScore  float64 `json:"sarcoma_risk_score"`
	RiskCategory      string  `json:"risk_category"`
	RecommendedAction string  `json:"recommended_action"`
}

type AssessResponse struct {
	RiskResponse
	RiskPercent       float64      `json:"risk_percent"`
	Policy            string       `json:"policy"`
	SuspectedSubtypes []string     `json:"suspected_subtypes"`
	Bundle            *fhir.Bundle `json:"bundle"`
}

type ArchivedSummary struct {
	ID        string  `json:"id"`
	PatientID string  `json:"patient_id"`
	Policy    string  `json:"policy"`
	Category  string  `json:"risk_category"`
	Score     float64 `json:"sarcoma_risk_score"`
	CreatedAt string  `json:"created_at"`
}

func riskResponse(out *Outcome) RiskResponse {
	return RiskResponse{
		PatientID:         out.Records.Patient.ID,
		SarcomaRiskScore:  out.Result.Score,
		RiskCategory:      string(out.Result.Category),
		RecommendedAction: out.RecommendedAction,
	}
}

// -- Handlers --

// GetRisk authenticates the caller's Athena token, fetches the patient and
// returns the score with a recommended action.
func (h *Handler) GetRisk(c echo.Context) error {
	id, err := h.patientID(c)
	if err != nil {
		return err
	}
	token := auth.BearerTokenFromContext(c.Request().Context())

	out, err := h.svc.LookupRisk(c.Request().Context(), token, id)
	if err != nil {
		return h.writeError(c, err, id)
	}
	return c.JSON(http.StatusOK, riskResponse(out))
}

// GetRiskBundle is GetRisk rendered as a FHIR collection Bundle.
func (h *Handler) GetRiskBundle(c echo.Context) error {
	id, err := h.patientID(c)
	if err != nil {
		return err
	}
	token := auth.BearerTokenFromContext(c.Request().Context())

	out, err := h.svc.LookupRisk(c.Request().Context(), token, id)
	if err != nil {
		return h.writeError(c, err, id)
	}
	bundle, err := out.Records.Bundle(fhir.BaseURL(c))
	if err != nil {
		return err
	}
	return fhir.WriteResource(c, http.StatusOK, bundle)
}

// CreateAssessment scores caller-supplied patient data.
func (h *Handler) CreateAssessment(c echo.Context) error {
	var req AssessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	in := Input{Patient: req.Patient, SuspectedSubtypes: req.SuspectedSubtypes}
	if req.Policy != "" {
		in.Policy, _ = risk.PolicyByName(req.Policy)
	}

	out, err := h.svc.Assess(c.Request().Context(), in)
	if err != nil {
		return h.writeError(c, err, req.Patient.ID)
	}
	bundle, err := out.Records.Bundle(fhir.BaseURL(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, AssessResponse{
		RiskResponse:      riskResponse(out),
		RiskPercent:       out.Result.Percent(),
		Policy:            out.Result.Policy,
		SuspectedSubtypes: out.Result.SuspectedSubtypes,
		Bundle:            bundle,
	})
}

func (h *Handler) ListAssessments(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListArchived(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return h.writeError(c, err, "")
	}
	summaries := make([]ArchivedSummary, 0, len(items))
	for _, a := range items {
		summaries = append(summaries, ArchivedSummary{
			ID:        a.FHIRID,
			PatientID: a.PatientID,
			Policy:    a.Policy,
			Category:  a.Category,
			Score:     a.Score,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(summaries, total, p))
}

// SearchRiskAssessments returns archived assessments as a searchset,
// optionally filtered by ?patient=.
func (h *Handler) SearchRiskAssessments(c echo.Context) error {
	p := pagination.FromContext(c)
	ctx := c.Request().Context()

	var (
		items []*ArchivedAssessment
		total int
		err   error
	)
	if patient := c.QueryParam("patient"); patient != "" {
		items, total, err = h.svc.ListArchivedByPatient(ctx, patient, p.Limit, p.Offset)
	} else {
		items, total, err = h.svc.ListArchived(ctx, p.Limit, p.Offset)
	}
	if err != nil {
		return h.writeError(c, err, "")
	}

	raws := make([]json.RawMessage, 0, len(items))
	for _, a := range items {
		raws = append(raws, a.Resource)
	}
	var links []fhir.BundleLink
	for _, l := range p.Links(c.Request().URL.Path, total) {
		links = append(links, fhir.BundleLink{Relation: l.Relation, URL: l.URL})
	}
	return fhir.WriteResource(c, http.StatusOK, fhir.NewSearchBundle(fhir.BaseURL(c), raws, total, links))
}

func (h *Handler) ReadRiskAssessment(c echo.Context) error {
	id := c.Param("id")
	a, err := h.svc.GetArchived(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fhir.WriteOutcome(c, http.StatusNotFound, fhir.NotFoundOutcome("RiskAssessment", id))
		}
		return h.writeError(c, err, "")
	}
	return c.Blob(http.StatusOK, fhir.ContentTypeFHIRJSON, a.Resource)
}

func (h *Handler) patientID(c echo.Context) (string, error) {
	p := patientPath{PatientID: c.Param("patient_id")}
	if err := c.Validate(&p); err != nil {
		return "", err
	}
	return p.PatientID, nil
}

// writeError maps domain and upstream failures to OperationOutcome
// responses. Anything unrecognised is left to the global error handler.
func (h *Handler) writeError(c echo.Context, err error, patientID string) error {
	var ue *athena.UpstreamError
	if errors.As(err, &ue) {
		h.logger.Warn().Err(err).Str("patient_id", patientID).Int("upstream_status", ue.StatusCode).Msg("athena request failed")
	}

	switch {
	case errors.Is(err, risk.ErrInvalidInput):
		return fhir.WriteOutcome(c, http.StatusBadRequest,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeRequired, err.Error()))
	case errors.Is(err, athena.ErrUnavailable):
		return fhir.WriteOutcome(c, http.StatusServiceUnavailable, fhir.TransientOutcome("athena is unavailable, retry later"))
	case errors.Is(err, athena.ErrUpstreamAuth):
		return fhir.WriteOutcome(c, http.StatusUnauthorized, fhir.LoginOutcome("Unauthorized"))
	case errors.Is(err, athena.ErrUpstreamData):
		return fhir.WriteOutcome(c, http.StatusNotFound, fhir.NotFoundOutcome("Patient", patientID))
	case errors.Is(err, ErrNotFound):
		return fhir.WriteOutcome(c, http.StatusNotFound, fhir.ErrorOutcome(err.Error()))
	}
	return err
}
