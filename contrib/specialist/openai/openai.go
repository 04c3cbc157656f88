// Package openai implements the specialist boundary against OpenAI chat
// models. The client mirrors the claude transport but additionally budgets
// prompt size with tiktoken, since field sessions can accumulate large
// answer payloads over many steps.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/pkoukk/tiktoken-go"
	"github.com/sweetpotato0/arborflow/assessment"
	"github.com/sweetpotato0/arborflow/pkg/telemetry"
	"github.com/sweetpotato0/arborflow/specialist"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config holds OpenAI client configuration
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float64
	MaxPromptTokens int
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:          apiKey,
		Model:           "gpt-4o-mini",
		Temperature:     0.2,
		MaxPromptTokens: 6000,
	}
}

// Client implements every specialist interface over the OpenAI API.
type Client struct {
	config  *Config
	client  openaisdk.Client
	encoder *tiktoken.Tiktoken
	tracer  trace.Tracer
}

var (
	_ specialist.Sequencer          = (*Client)(nil)
	_ specialist.SafetyAnalyst      = (*Client)(nil)
	_ specialist.Scorer             = (*Client)(nil)
	_ specialist.MeasurementAdvisor = (*Client)(nil)
	_ specialist.Reporter           = (*Client)(nil)
)

// New creates a new OpenAI specialist client using the official SDK
func New(config *Config) (*Client, error) {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxPromptTokens <= 0 {
		config.MaxPromptTokens = 6000
	}

	encoder, err := tiktoken.EncodingForModel(config.Model)
	if err != nil {
		encoder, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to load tokenizer: %w", err)
		}
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Client{
		config:  config,
		client:  openaisdk.NewClient(options...),
		encoder: encoder,
		tracer:  telemetry.Tracer("arborflow/specialist/openai"),
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

const sequencerSystem = `You are the assessment sequencing specialist for a tree service
field-assessment workflow. The workflow steps, in order, are: initialization,
basic_measurement, risk_assessment, treescore_calculation, completion.
Given the current assessment state, decide what the operator must do next.
Always answer with a single JSON object and nothing else.`

const safetySystem = `You are the AFISS safety specialist for tree service operations.
Classify overall site risk as low, moderate, high or extreme and list the
required protocols. Always answer with a single JSON object and nothing else.`

const scoringSystem = `You are the TreeScore calculation specialist. Removal = height x
(crown radius x 2) x (dbh / 12); stump grinding = (height + 12) x dbh;
trimming = height x crown radius x (dbh / 24). Always answer with a single
JSON object and nothing else.`

const measurementSystem = `You are the AR measurement specialist guiding tree measurements and
judging capture accuracy. Always answer with a single JSON object and nothing else.`

const reportingSystem = `You are the operations reporting specialist producing customer-ready
assessment reports. Always answer with a single JSON object and nothing else.`

// NextStep implements specialist.Sequencer.
func (c *Client) NextStep(ctx context.Context, req *specialist.NextStepRequest) (*specialist.NextStepResponse, error) {
	prompt, err := c.payloadPrompt("Choose the next workflow step for this assessment.", req, `{
  "step": "<one of: initialization|basic_measurement|risk_assessment|treescore_calculation|completion>",
  "fields": [{"id": "", "label": "", "kind": "", "required": true, "options": [], "rules": [], "help_text": ""}],
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
	prompt, err := c.payloadPrompt("Report whether this assessment step has all required data.", req, `{
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
	prompt, err := c.payloadPrompt("Produce the dynamic form field list for the step in this context.", req, `{
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
	// Same stub policy as the claude transport: allowed except at the first
	// step.
	return req.Context.Step != assessment.StepInitialization, nil
}

// AssessRisks implements specialist.SafetyAnalyst.
func (c *Client) AssessRisks(ctx context.Context, req *specialist.SafetyRequest) (*specialist.SafetyResponse, error) {
	prompt, err := c.payloadPrompt("Assess the site safety risks for this job.", req, `{
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
	prompt, err := c.payloadPrompt("Calculate the TreeScore for these measurements.", req, `{
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
	prompt, err := c.payloadPrompt("Give the operator instructions for capturing this measurement.", req, `{
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
	prompt, err := c.payloadPrompt("Judge whether this raw capture is usable and estimate its accuracy.", req, `{
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
	prompt, err := c.payloadPrompt("Generate the final assessment report for this completed assessment.", req, `{
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

func (c *Client) completeJSON(ctx context.Context, op, system, prompt string, out any) error {
	ctx, span := c.tracer.Start(ctx, op,
		trace.WithAttributes(attribute.String("llm.model", c.config.Model)))
	var err error
	defer func() { telemetry.End(span, err) }()

	params := openaisdk.ChatCompletionNewParams{
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(prompt),
		},
		Model: openaisdk.ChatModel(c.config.Model),
	}
	if c.config.Temperature > 0 {
		params.Temperature = param.NewOpt(c.config.Temperature)
	}

	completion, apiErr := c.client.Chat.Completions.New(ctx, params)
	if apiErr != nil {
		err = fmt.Errorf("OpenAI API error: %w", apiErr)
		return err
	}
	if len(completion.Choices) == 0 {
		err = fmt.Errorf("OpenAI returned no choices")
		return err
	}

	if err = json.Unmarshal([]byte(stripFences(completion.Choices[0].Message.Content)), out); err != nil {
		err = fmt.Errorf("failed to parse specialist response: %w", err)
		return err
	}
	return nil
}

// payloadPrompt serializes the payload, trimming it to the prompt token
// budget. Trimming keeps the head of the document, so the leading fields
// stay intact, and the prompt tells the model the tail was cut; the task
// line and schema always survive.
func (c *Client) payloadPrompt(task string, payload any, schema string) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	body := string(data)
	truncated := false
	if tokens := c.encoder.Encode(body, nil, nil); len(tokens) > c.config.MaxPromptTokens {
		body = c.encoder.Decode(tokens[:c.config.MaxPromptTokens])
		truncated = true
	}

	return buildPrompt(task, body, truncated, schema), nil
}

func buildPrompt(task, body string, truncated bool, schema string) string {
	note := ""
	if truncated {
		note = "\n[payload truncated: trailing fields omitted to fit the prompt limit]"
	}
	return fmt.Sprintf("%s\n\nAssessment payload:\n%s%s\n\nRespond with JSON matching:\n%s", task, body, note, schema)
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
