package eval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/controller"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/providers"
	"github.com/brookwillow/kiwi/pkg/tracker"
	"github.com/brookwillow/kiwi/pkg/utils"
)

// Case is one evaluation input line.
type Case struct {
	Query            string   `json:"query"`
	ExpectedAgent    string   `json:"expected_agent"`
	ExpectedResponse string   `json:"expected_response"`
	Category         string   `json:"category"`
	FollowUps        []string `json:"follow_ups,omitempty"`
}

// CaseResult is one scored case in the report.
type CaseResult struct {
	Case
	ActualAgent    string  `json:"actual_agent"`
	ActualResponse string  `json:"actual_response"`
	AgentMatch     bool    `json:"agent_match"`
	ResponsePass   bool    `json:"response_pass"`
	Judgement      string  `json:"judgement,omitempty"`
	LatencyMS      float64 `json:"latency_ms"`
	Rounds         int     `json:"rounds"`
}

// Report is the evaluation output document.
type Report struct {
	Summary Summary      `json:"summary"`
	Cases   []CaseResult `json:"cases"`
}

type Summary struct {
	Total            int     `json:"total"`
	AgentMatchRate   float64 `json:"agent_match_rate"`
	ResponsePassRate float64 `json:"response_pass_rate"`
	OverallPassRate  float64 `json:"overall_pass_rate"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
}

// Evaluator batch-feeds synthetic utterances into the pipeline, bypassing
// capture, and awaits completion through the tracker.
type Evaluator struct {
	controller *controller.Controller
	tracker    *tracker.Tracker
	judge      providers.LLMProvider // nil disables the LLM judge
	cfg        config.EvalConfig
}

func New(ctrl *controller.Controller, tr *tracker.Tracker, judge providers.LLMProvider, cfg config.EvalConfig) *Evaluator {
	return &Evaluator{controller: ctrl, tracker: tr, judge: judge, cfg: cfg}
}

// LoadCases reads the JSONL case file.
func LoadCases(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cases file: %w", err)
	}
	defer f.Close()

	var cases []Case
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if len(text) == 0 {
			continue
		}
		var c Case
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("cases file line %d: %w", line, err)
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cases file: %w", err)
	}
	return cases, nil
}

// Run evaluates every case sequentially and writes the JSON report.
func (e *Evaluator) Run(ctx context.Context, cases []Case) (*Report, error) {
	results := make([]CaseResult, 0, len(cases))
	for i, c := range cases {
		logger.InfoCF("eval", "Running case",
			map[string]any{"index": i + 1, "total": len(cases), "query": c.Query})
		results = append(results, e.runCase(ctx, c))
	}

	report := buildReport(results)
	if e.cfg.ReportFile != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return report, fmt.Errorf("failed to encode report: %w", err)
		}
		if err := utils.WriteFileAtomic(e.cfg.ReportFile, data, 0o644); err != nil {
			return report, err
		}
		logger.InfoCF("eval", "Report written", map[string]any{"path": e.cfg.ReportFile})
	}
	return report, nil
}

func (e *Evaluator) runCase(ctx context.Context, c Case) CaseResult {
	result := CaseResult{Case: c}
	start := time.Now()

	snapshot, ok := e.driveUtterance(ctx, c.Query)
	result.Rounds = 1

	// Answer pending prompts with the scripted follow-ups, each as a fresh
	// utterance attached to the same session by the orchestrator.
	followUps := c.FollowUps
	for ok && snapshot.Status == tracker.StatusWaitingInput &&
		len(followUps) > 0 && result.Rounds <= e.cfg.MaxFollowUps {
		next := followUps[0]
		followUps = followUps[1:]
		snapshot, ok = e.driveUtterance(ctx, next)
		result.Rounds++
	}

	result.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	if !ok {
		result.ActualResponse = ""
		result.Judgement = "timeout waiting for pipeline"
		return result
	}

	result.ActualAgent = actualAgent(snapshot)
	result.ActualResponse = snapshot.Response
	result.AgentMatch = c.ExpectedAgent == "" || result.ActualAgent == c.ExpectedAgent
	result.ResponsePass, result.Judgement = e.scoreResponse(ctx, c, snapshot)
	return result
}

// driveUtterance injects one recognized utterance and polls its trace until
// it reaches waiting_input or a terminal status.
func (e *Evaluator) driveUtterance(ctx context.Context, text string) (tracker.TraceSnapshot, bool) {
	msgID := e.tracker.CreateMessageID()
	e.tracker.UpdateQuery(msgID, text)
	e.controller.Publish(bus.NewEvent(bus.ASRRecognitionSuccess, "evaluator", bus.Recognition{
		Text:       text,
		Confidence: 1.0,
	}).WithMessageID(msgID))

	timeout := time.Duration(e.cfg.TimeoutSeconds) * time.Second
	poll := time.Duration(e.cfg.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return tracker.TraceSnapshot{}, false
		case <-time.After(poll):
		}

		snapshot, ok := e.tracker.Snapshot(msgID)
		if !ok {
			continue
		}
		if snapshot.Status.Terminal() || snapshot.Status == tracker.StatusWaitingInput {
			return snapshot, true
		}
	}
	return tracker.TraceSnapshot{}, false
}

func actualAgent(snapshot tracker.TraceSnapshot) string {
	for i := len(snapshot.Entries) - 1; i >= 0; i-- {
		if snapshot.Entries[i].EventType == "agent_response" {
			return snapshot.Entries[i].Stage
		}
	}
	return ""
}

func buildReport(results []CaseResult) *Report {
	report := &Report{Cases: results}
	report.Summary.Total = len(results)
	if len(results) == 0 {
		return report
	}

	var agentMatches, responsePasses, overall int
	var latency float64
	for _, r := range results {
		if r.AgentMatch {
			agentMatches++
		}
		if r.ResponsePass {
			responsePasses++
		}
		if r.AgentMatch && r.ResponsePass {
			overall++
		}
		latency += r.LatencyMS
	}

	n := float64(len(results))
	report.Summary.AgentMatchRate = float64(agentMatches) / n
	report.Summary.ResponsePassRate = float64(responsePasses) / n
	report.Summary.OverallPassRate = float64(overall) / n
	report.Summary.AvgLatencyMS = latency / n
	return report
}
