package risk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// Assessment is the behaviour the handler needs from an Assessor.
type Assessment interface {
	Assess(ctx context.Context, in ScenarioInput) RiskResult
}

// Handler provides HTTP endpoints for risk assessment
type Handler struct {
	assessor Assessment
}

// NewHandler creates a new risk handler
func NewHandler(assessor Assessment) *Handler {
	return &Handler{assessor: assessor}
}

// RegisterRoutes sets up risk routes. The group is expected to carry the
// rate governor.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/risk-assess", h.Assess)
}

// AssessRequest is the wire form of ScenarioInput. UserAlone is a pointer so
// an explicit false can be told apart from an absent field.
type AssessRequest struct {
	ScenarioID       string `json:"scenarioId" binding:"required,notblank"`
	TimeOfDay        string `json:"timeOfDay" binding:"required,notblank"`
	UserAlone        *bool  `json:"userAlone" binding:"required"`
	NeighborhoodType string `json:"neighborhoodType" binding:"required,notblank"`
	RouteLighting    string `json:"routeLighting" binding:"required,notblank"`
}

// requestValidator reads the same binding tags gin does, plus notblank so a
// whitespace-only value counts as missing.
var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// Input converts a bound request into a ScenarioInput.
func (r AssessRequest) Input() ScenarioInput {
	in := ScenarioInput{
		ScenarioID:       r.ScenarioID,
		TimeOfDay:        r.TimeOfDay,
		NeighborhoodType: r.NeighborhoodType,
		RouteLighting:    r.RouteLighting,
	}
	if r.UserAlone != nil {
		in.UserAlone = *r.UserAlone
	}
	return in
}

// Assess handles POST /api/risk-assess
func (h *Handler) Assess(c *gin.Context) {
	req, err := decodeAssessRequest(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErrorCode(err)})
		return
	}

	c.JSON(http.StatusOK, h.assessor.Assess(c.Request.Context(), req.Input()))
}

// decodeAssessRequest decodes a single JSON object, rejecting keys that are
// not part of AssessRequest, then validates it.
func decodeAssessRequest(body io.Reader) (AssessRequest, error) {
	var req AssessRequest
	if body == nil {
		return req, io.EOF
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, err
	}
	return req, requestValidator.Struct(req)
}

// bindErrorCode turns a decode or validation failure into a stable error
// code: the first missing field as missing_<jsonName>, a key outside the
// schema as unknown_field, otherwise invalid_json. An empty body is reported
// as the first required field being missing.
func bindErrorCode(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "missing_" + jsonFieldName(verrs[0].StructField())
	}
	if errors.Is(err, io.EOF) {
		return "missing_" + jsonFieldName("ScenarioID")
	}
	// encoding/json has no typed error for DisallowUnknownFields.
	if strings.HasPrefix(err.Error(), "json: unknown field ") {
		return "unknown_field"
	}
	return "invalid_json"
}

var assessRequestType = reflect.TypeOf(AssessRequest{})

func jsonFieldName(structField string) string {
	f, ok := assessRequestType.FieldByName(structField)
	if !ok {
		return strings.ToLower(structField)
	}
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	return name
}
