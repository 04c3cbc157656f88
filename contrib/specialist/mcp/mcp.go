// Package mcp implements the specialist boundary against an MCP server,
// letting deployments host the decision services as remote tools instead of
// direct LLM calls.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/arborflow/assessment"
	"github.com/sweetpotato0/arborflow/pkg/telemetry"
	"github.com/sweetpotato0/arborflow/specialist"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrClientClosed is returned when the MCP session has been closed.
var ErrClientClosed = errors.New("mcp specialist client closed")

// ToolError is returned when the MCP server reports an error response.
type ToolError struct {
	Name    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool %s: %s", e.Name, e.Message)
}

// ToolNames maps each specialist operation to the tool exposed by the MCP
// server. Zero values fall back to the defaults below.
type ToolNames struct {
	NextStep            string
	ValidateCompletion  string
	GenerateForm        string
	AssessRisks         string
	CalculateTreeScore  string
	Guidance            string
	ValidateMeasurement string
	GenerateReport      string
}

func (n ToolNames) withDefaults() ToolNames {
	def := func(v, fallback string) string {
		if v != "" {
			return v
		}
		return fallback
	}
	return ToolNames{
		NextStep:            def(n.NextStep, "assessment_next_step"),
		ValidateCompletion:  def(n.ValidateCompletion, "assessment_validate_completion"),
		GenerateForm:        def(n.GenerateForm, "assessment_generate_form"),
		AssessRisks:         def(n.AssessRisks, "safety_assess_risks"),
		CalculateTreeScore:  def(n.CalculateTreeScore, "treescore_calculate"),
		Guidance:            def(n.Guidance, "measurement_guidance"),
		ValidateMeasurement: def(n.ValidateMeasurement, "measurement_validate"),
		GenerateReport:      def(n.GenerateReport, "operations_generate_report"),
	}
}

// Client drives the specialist operations through tools on an MCP session.
type Client struct {
	session *sdkmcp.ClientSession
	tools   ToolNames
	tracer  trace.Tracer
}

var (
	_ specialist.Sequencer          = (*Client)(nil)
	_ specialist.SafetyAnalyst      = (*Client)(nil)
	_ specialist.Scorer             = (*Client)(nil)
	_ specialist.MeasurementAdvisor = (*Client)(nil)
	_ specialist.Reporter           = (*Client)(nil)
)

// New wraps an already-connected MCP client session.
func New(session *sdkmcp.ClientSession, tools ToolNames) (*Client, error) {
	if session == nil {
		return nil, errors.New("mcp: session cannot be nil")
	}
	return &Client{
		session: session,
		tools:   tools.withDefaults(),
		tracer:  telemetry.Tracer("arborflow/specialist/mcp"),
	}, nil
}

// Set returns a specialist set backed entirely by this client.
func (c *Client) Set() specialist.Set {
	return specialist.Set{
		Sequencer:   c,
		Safety:      c,
		Scorer:      c,
		Measurement: c,
		Reporter:    c,
	}
}

// NextStep implements specialist.Sequencer.
func (c *Client) NextStep(ctx context.Context, req *specialist.NextStepRequest) (*specialist.NextStepResponse, error) {
	var resp specialist.NextStepResponse
	if err := c.call(ctx, c.tools.NextStep, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Step.Valid() {
		return nil, fmt.Errorf("sequencing tool returned unknown step %q", resp.Step)
	}
	return &resp, nil
}

// ValidateCompletion implements specialist.Sequencer.
func (c *Client) ValidateCompletion(ctx context.Context, req *specialist.CompletionCheckRequest) (*specialist.CompletionCheckResponse, error) {
	var resp specialist.CompletionCheckResponse
	if err := c.call(ctx, c.tools.ValidateCompletion, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateForm implements specialist.Sequencer.
func (c *Client) GenerateForm(ctx context.Context, req *specialist.FormRequest) ([]assessment.DynamicFormField, error) {
	var resp struct {
		Fields []assessment.DynamicFormField `json:"fields"`
	}
	if err := c.call(ctx, c.tools.GenerateForm, req, &resp); err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

// ApproveBack implements specialist.Sequencer.
func (c *Client) ApproveBack(ctx context.Context, req *specialist.BackRequest) (bool, error) {
	// Same stub policy as the LLM transports: allowed except at the first
	// step.
	return req.Context.Step != assessment.StepInitialization, nil
}

// AssessRisks implements specialist.SafetyAnalyst.
func (c *Client) AssessRisks(ctx context.Context, req *specialist.SafetyRequest) (*specialist.SafetyResponse, error) {
	var resp specialist.SafetyResponse
	if err := c.call(ctx, c.tools.AssessRisks, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CalculateTreeScore implements specialist.Scorer.
func (c *Client) CalculateTreeScore(ctx context.Context, req *specialist.ScoreRequest) (*specialist.ScoreResponse, error) {
	var resp specialist.ScoreResponse
	if err := c.call(ctx, c.tools.CalculateTreeScore, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Guidance implements specialist.MeasurementAdvisor.
func (c *Client) Guidance(ctx context.Context, req *specialist.GuidanceRequest) (*specialist.GuidanceResponse, error) {
	var resp specialist.GuidanceResponse
	if err := c.call(ctx, c.tools.Guidance, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateMeasurement implements specialist.MeasurementAdvisor.
func (c *Client) ValidateMeasurement(ctx context.Context, req *specialist.MeasurementValidationRequest) (*specialist.MeasurementValidationResponse, error) {
	var resp specialist.MeasurementValidationResponse
	if err := c.call(ctx, c.tools.ValidateMeasurement, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateReport implements specialist.Reporter.
func (c *Client) GenerateReport(ctx context.Context, req *specialist.ReportRequest) (*specialist.ReportResponse, error) {
	var resp specialist.ReportResponse
	if err := c.call(ctx, c.tools.GenerateReport, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, name string, req, out any) error {
	ctx, span := c.tracer.Start(ctx, "specialist.mcp_call",
		trace.WithAttributes(attribute.String("mcp.tool", name)))
	var err error
	defer func() { telemetry.End(span, err) }()

	if c.session == nil {
		err = ErrClientClosed
		return err
	}

	args, err := toArguments(req)
	if err != nil {
		return err
	}

	result, callErr := c.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if callErr != nil {
		err = fmt.Errorf("mcp call %s: %w", name, callErr)
		return err
	}

	message := normalizeContent(result.Content)
	if result.IsError {
		if message == "" {
			message = "tool returned error without message"
		}
		err = &ToolError{Name: name, Message: message}
		return err
	}

	if err = json.Unmarshal([]byte(message), out); err != nil {
		err = fmt.Errorf("failed to parse %s response: %w", name, err)
		return err
	}
	return nil
}

func toArguments(req any) (map[string]any, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
	}
	args := make(map[string]any)
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("failed to build tool arguments: %w", err)
	}
	return args, nil
}

func normalizeContent(content []sdkmcp.Content) string {
	if len(content) == 0 {
		return ""
	}

	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := c.MarshalJSON(); err == nil {
				parts = append(parts, string(data))
			}
		}
	}

	return strings.TrimSpace(strings.Join(parts, "\n"))
}
