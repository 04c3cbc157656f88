// Package claude implements the specialist boundary against Anthropic
// Claude models using the official SDK. One client type serves all five
// specialist interfaces; each operation is a structured JSON prompt with a
// role-specific system prompt.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sweetpotato0/arborflow/assessment"
	"github.com/sweetpotato0/arborflow/pkg/telemetry"
	"github.com/sweetpotato0/arborflow/specialist"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config holds Claude client configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "claude-3-5-sonnet-20241022",
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

// Client implements every specialist interface over the Anthropic API.
type Client struct {
	config *Config
	client anthropic.Client
	tracer trace.Tracer
}

var (
	_ specialist.Sequencer          = (*Client)(nil)
	_ specialist.SafetyAnalyst      = (*Client)(nil)
	_ specialist.Scorer             = (*Client)(nil)
	_ specialist.MeasurementAdvisor = (*Client)(nil)
	_ specialist.Reporter           = (*Client)(nil)
)

// New creates a new Claude specialist client using the official SDK
func New(config *Config) *Client {
	if config.Model == "" {
		config.Model = "claude-3-5-sonnet-20241022"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Client{
		config: config,
		client: anthropic.NewClient(options...),
		tracer: telemetry.Tracer("arborflow/specialist/claude"),
	}
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

const sequencerSystem = `You are the assessment sequencing specialist for a tree service
field-assessment workflow. The workflow steps, in order, are: initialization,
basic_measurement, risk_assessment, treescore_calculation, completion.
Given the current assessment state, decide what the operator must do next.
Always answer with a single JSON object and nothing else.`

const safetySystem = `You are the AFISS safety specialist for tree service operations. You
assess site risk across the access, fall zone, interference and severity
domains and classify overall risk as low, moderate, high or extreme.
Always answer with a single JSON object and nothing else.`

const scoringSystem = `You are the TreeScore calculation specialist. You compute base points
from tree measurements: removal = height x (crown radius x 2) x (dbh / 12),
stump grinding = (height + 12) x dbh, trimming = height x crown radius x (dbh / 24).
Always answer with a single JSON object and nothing else.`

const measurementSystem = `You are the AR measurement specialist guiding a field operator through
tree measurements (height, dbh, crown radius) and judging capture accuracy.
Always answer with a single JSON object and nothing else.`

const reportingSystem = `You are the operations reporting specialist. You turn a completed tree
assessment into a clear customer-ready report and flag quality gaps.
Always answer with a single JSON object and nothing else.`

// NextStep implements specialist.Sequencer.
func (c *Client) NextStep(ctx context.Context, req *specialist.NextStepRequest) (*specialist.NextStepResponse, error) {
	prompt, err := payloadPrompt("Choose the next workflow step for this assessment.", req, `{
  "step": "<one of: initialization|basic_measurement|risk_assessment|treescore_calculation|completion>",
  "fields": [{"id": "", "label": "", "kind": "<text|number|boolean|select|multi_select|range|measurement>", "required": true, "options": [], "rules": [{"kind": "<required|min|max|pattern|custom>", "value": "", "message": ""}], "help_text": ""}],
  "instructions": "",
  "reasoning": "",
  "confidence": 0.0
}`)
	if err != nil {
		return nil, err
	}

	var resp specialist.NextStepResponse
	if err := c.completeJSON(ctx, "specialist.next_step", sequencerSystem, prompt, &resp); err != nil {
		return nil, err
	}
	if !resp.Step.Valid() {
		return nil, fmt.Errorf("sequencing specialist returned unknown step %q", resp.Step)
	}
	return &resp, nil
}

// ValidateCompletion implements specialist.Sequencer.
func (c *Client) ValidateCompletion(ctx context.Context, req *specialist.CompletionCheckRequest) (*specialist.CompletionCheckResponse, error) {
	prompt, err := payloadPrompt("Report whether this assessment step has all required data.", req, `{
  "complete": false,
  "missing_data": ["<field id>"],
  "next_actions": ["<suggested action>"]
}`)
	if err != nil {
		return nil, err
	}

	var resp specialist.CompletionCheckResponse
	if err := c.completeJSON(ctx, "specialist.validate_completion", sequencerSystem, prompt, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateForm implements specialist.Sequencer.
func (c *Client) GenerateForm(ctx context.Context, req *specialist.FormRequest) ([]assessment.DynamicFormField, error) {
	prompt, err := payloadPrompt("Produce the dynamic form field list for the step in this context.", req, `{
  "fields": [{"id": "", "label": "", "kind": "", "required": true, "options": [], "rules": [], "help_text": ""}]
}`)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Fields []assessment.DynamicFormField `json:"fields"`
	}
	if err := c.completeJSON(ctx, "specialist.generate_form", sequencerSystem, prompt, &resp); err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

// ApproveBack implements specialist.Sequencer.
func (c *Client) ApproveBack(ctx context.Context, req *specialist.BackRequest) (bool, error) {
	// Policy stub: backward navigation is always allowed except at the
	// first step. Kept behind the same boundary so a real policy model can
	// replace it without sequencer changes.
	return req.Context.Step != assessment.StepInitialization, nil
}

// AssessRisks implements specialist.SafetyAnalyst.
func (c *Client) AssessRisks(ctx context.Context, req *specialist.SafetyRequest) (*specialist.SafetyResponse, error) {
	prompt, err := payloadPrompt("Assess the site safety risks for this job.", req, `{
  "risk_level": "<low|moderate|high|extreme>",
  "protocols": ["<required protocol>"],
  "recommendations": [{"message": "", "priority": "<low|medium|high|critical>"}]
}`)
	if err != nil {
		return nil, err
	}

	var resp specialist.SafetyResponse
	if err := c.completeJSON(ctx, "specialist.assess_risks", safetySystem, prompt, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CalculateTreeScore implements specialist.Scorer.
func (c *Client) CalculateTreeScore(ctx context.Context, req *specialist.ScoreRequest) (*specialist.ScoreResponse, error) {
	prompt, err := payloadPrompt("Calculate the TreeScore for these measurements.", req, `{
  "base_points": 0.0,
  "estimated_hours": 0.0,
  "crew_recommendation": "",
  "recommendations": [{"message": "", "priority": "<low|medium|high|critical>"}]
}`)
	if err != nil {
		return nil, err
	}

	var resp specialist.ScoreResponse
	if err := c.completeJSON(ctx, "specialist.calculate_treescore", scoringSystem, prompt, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Guidance implements specialist.MeasurementAdvisor.
func (c *Client) Guidance(ctx context.Context, req *specialist.GuidanceRequest) (*specialist.GuidanceResponse, error) {
	prompt, err := payloadPrompt("Give the operator instructions for capturing this measurement.", req, `{
  "instructions": ""
}`)
	if err != nil {
		return nil, err
	}

	var resp specialist.GuidanceResponse
	if err := c.completeJSON(ctx, "specialist.guidance", measurementSystem, prompt, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateMeasurement implements specialist.MeasurementAdvisor.
func (c *Client) ValidateMeasurement(ctx context.Context, req *specialist.MeasurementValidationRequest) (*specialist.MeasurementValidationResponse, error) {
	prompt, err := payloadPrompt("Judge whether this raw capture is usable and estimate its accuracy.", req, `{
  "valid": true,
  "accuracy": 0.0,
  "comment": ""
}`)
	if err != nil {
		return nil, err
	}

	var resp specialist.MeasurementValidationResponse
	if err := c.completeJSON(ctx, "specialist.validate_measurement", measurementSystem, prompt, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateReport implements specialist.Reporter.
func (c *Client) GenerateReport(ctx context.Context, req *specialist.ReportRequest) (*specialist.ReportResponse, error) {
	prompt, err := payloadPrompt("Generate the final assessment report for this completed assessment.", req, `{
  "report": "",
  "recommendations": [{"message": "", "priority": "<low|medium|high|critical>"}]
}`)
	if err != nil {
		return nil, err
	}

	var resp specialist.ReportResponse
	if err := c.completeJSON(ctx, "specialist.generate_report", reportingSystem, prompt, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// completeJSON runs one structured round trip: send the prompt, extract the
// text block, strip markdown fences and unmarshal into out.
func (c *Client) completeJSON(ctx context.Context, op, system, prompt string, out any) error {
	ctx, span := c.tracer.Start(ctx, op,
		trace.WithAttributes(attribute.String("llm.model", c.config.Model)))
	var err error
	defer func() { telemetry.End(span, err) }()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: c.config.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	apiMessage, apiErr := c.client.Messages.New(ctx, params)
	if apiErr != nil {
		err = fmt.Errorf("Claude API error: %w", apiErr)
		return err
	}

	var responseText string
	for _, content := range apiMessage.Content {
		if content.Type == "text" {
			responseText = content.Text
		}
	}
	if responseText == "" {
		err = fmt.Errorf("Claude returned no text content")
		return err
	}

	if err = json.Unmarshal([]byte(stripFences(responseText)), out); err != nil {
		err = fmt.Errorf("failed to parse specialist response: %w", err)
		return err
	}
	return nil
}

// payloadPrompt serializes the request payload and frames the expected
// response schema.
func payloadPrompt(task string, payload any, schema string) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return fmt.Sprintf("%s\n\nAssessment payload:\n%s\n\nRespond with JSON matching:\n%s", task, data, schema), nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}
