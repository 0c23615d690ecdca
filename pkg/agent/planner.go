package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/providers"
)

// PlanTask is one step of a generated plan.
type PlanTask struct {
	TaskID      string   `json:"task_id"`
	Description string   `json:"description"`
	Agent       string   `json:"agent"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

type taskOutcome struct {
	Task    PlanTask
	Status  string // succeeded, failed, aborted
	Message string
}

// TaskRunner executes one planned task on another agent. The runtime supplies
// a direct implementation; the agent adapter swaps in one that routes through
// the dispatch path so each task shows up as its own dispatch.
type TaskRunner func(ctx context.Context, agentName, query string, actx *Context) *Response

// PlannerAgent decomposes a cross-domain request into an ordered task plan,
// executes it honoring dependencies, and summarizes the outcomes. A failed
// task aborts only its transitive dependents.
type PlannerAgent struct {
	cfg    config.AgentConfig
	llm    providers.LLMProvider
	agents func() []config.AgentConfig
	runner TaskRunner
}

func NewPlannerAgent(cfg config.AgentConfig, llm providers.LLMProvider, agents func() []config.AgentConfig, runner TaskRunner) *PlannerAgent {
	return &PlannerAgent{cfg: cfg, llm: llm, agents: agents, runner: runner}
}

func (a *PlannerAgent) Name() string {
	return a.cfg.Name
}

func (a *PlannerAgent) Config() config.AgentConfig {
	return a.cfg
}

// SetRunner replaces the task runner. Used by the agent adapter to route
// planned tasks through the dispatch path.
func (a *PlannerAgent) SetRunner(runner TaskRunner) {
	a.runner = runner
}

func (a *PlannerAgent) Handle(ctx context.Context, query string, actx *Context) *Response {
	plan, err := a.generatePlan(ctx, query)
	if err != nil {
		logger.ErrorCF("agent", "Plan generation failed",
			map[string]any{"agent": a.cfg.Name, "error": err.Error()})
		return errorResponse(a.cfg.Name, query, "抱歉，我无法为这个任务制定执行计划。")
	}
	if len(plan) == 0 {
		return &Response{
			Agent:   a.cfg.Name,
			Query:   query,
			Status:  StatusCompleted,
			Message: "这个任务不需要复杂的规划，您可以直接向其他助手提出具体需求。",
		}
	}

	outcomes := a.executePlan(ctx, plan, actx)
	summary := a.summarize(ctx, query, outcomes)

	return &Response{
		Agent:   a.cfg.Name,
		Query:   query,
		Status:  StatusSuccess,
		Message: summary,
		Data:    map[string]any{"plan": plan, "results": outcomesData(outcomes)},
	}
}

func (a *PlannerAgent) generatePlan(ctx context.Context, query string) ([]PlanTask, error) {
	agentsInfo := make([]map[string]any, 0)
	for _, cfg := range a.agents() {
		if cfg.Name == a.cfg.Name {
			continue
		}
		agentsInfo = append(agentsInfo, map[string]any{
			"name":         cfg.Name,
			"description":  cfg.Description,
			"capabilities": cfg.Capabilities,
		})
	}
	agentsJSON, _ := json.MarshalIndent(agentsInfo, "", "  ")

	prompt := fmt.Sprintf(`你是车载助手的任务规划器。将用户的复杂请求拆解为可以由以下助手执行的任务列表。

**用户请求：**
%s

**可用的助手：**
%s

**要求：**
1. 每个任务分配给一个助手，任务描述是可以直接交给该助手执行的一句话指令
2. 用depends_on声明任务间的依赖（被依赖任务的task_id列表），无依赖的任务留空数组
3. 相互独立的任务不要加依赖
4. 如果请求只需要一个助手处理一件事，返回空的tasks数组

**输出格式（必须是有效的JSON）：**
{"tasks": [{"task_id": "t1", "description": "...", "agent": "...", "depends_on": []}]}

只输出JSON。`, query, agentsJSON)

	resp, err := providers.ChatWithRetry(ctx, a.llm,
		[]providers.Message{
			{Role: "system", Content: "你是一个任务规划系统。"},
			{Role: "user", Content: prompt},
		},
		nil, "", map[string]any{"temperature": 0.2, "response_format": "json_object"})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Tasks []PlanTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(stripFence(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return validatePlan(parsed.Tasks, a.agents())
}

func validatePlan(tasks []PlanTask, agents []config.AgentConfig) ([]PlanTask, error) {
	known := make(map[string]bool, len(agents))
	for _, a := range agents {
		known[a.Name] = true
	}

	ids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.TaskID == "" {
			return nil, fmt.Errorf("plan task without task_id")
		}
		if ids[t.TaskID] {
			return nil, fmt.Errorf("duplicate task_id %q", t.TaskID)
		}
		ids[t.TaskID] = true
		if !known[t.Agent] {
			return nil, fmt.Errorf("plan references unknown agent %q", t.Agent)
		}
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				return nil, fmt.Errorf("task %q depends on unknown task %q", t.TaskID, dep)
			}
		}
	}
	return tasks, nil
}

// executePlan runs tasks in dependency order: a task runs once every
// dependency succeeded, and is aborted once any dependency failed or was
// aborted.
func (a *PlannerAgent) executePlan(ctx context.Context, plan []PlanTask, actx *Context) []taskOutcome {
	status := make(map[string]string, len(plan)) // "", succeeded, failed, aborted
	message := make(map[string]string, len(plan))

	for {
		progressed := false
		for _, task := range plan {
			if status[task.TaskID] != "" {
				continue
			}

			ready := true
			abort := false
			for _, dep := range task.DependsOn {
				switch status[dep] {
				case "succeeded":
				case "failed", "aborted":
					abort = true
				default:
					ready = false
				}
			}
			if abort {
				status[task.TaskID] = "aborted"
				message[task.TaskID] = "依赖任务失败，已取消"
				progressed = true
				continue
			}
			if !ready {
				continue
			}

			resp := a.runner(ctx, task.Agent, task.Description, actx)
			if resp != nil && (resp.Status == StatusSuccess || resp.Status == StatusCompleted) {
				status[task.TaskID] = "succeeded"
				message[task.TaskID] = resp.Message
			} else {
				status[task.TaskID] = "failed"
				if resp != nil {
					message[task.TaskID] = resp.Message
				}
				logger.WarnCF("agent", "Planned task failed",
					map[string]any{"task": task.TaskID, "agent": task.Agent})
			}
			progressed = true
		}

		done := true
		for _, task := range plan {
			if status[task.TaskID] == "" {
				done = false
			}
		}
		if done {
			break
		}
		if !progressed {
			// Dependency cycle: nothing runnable remains.
			for _, task := range plan {
				if status[task.TaskID] == "" {
					status[task.TaskID] = "aborted"
					message[task.TaskID] = "依赖关系无法满足"
				}
			}
			break
		}
	}

	outcomes := make([]taskOutcome, 0, len(plan))
	for _, task := range plan {
		outcomes = append(outcomes, taskOutcome{
			Task:    task,
			Status:  status[task.TaskID],
			Message: message[task.TaskID],
		})
	}
	return outcomes
}

func (a *PlannerAgent) summarize(ctx context.Context, query string, outcomes []taskOutcome) string {
	var b strings.Builder
	for _, o := range outcomes {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", o.Status, o.Task.Description, o.Message)
	}

	prompt := fmt.Sprintf(`用户请求："%s"

各项任务的执行结果：
%s

用一两句简短自然的中文向用户汇报整体结果。失败或取消的任务要如实说明。只输出汇报内容。`, query, b.String())

	resp, err := providers.ChatWithRetry(ctx, a.llm,
		[]providers.Message{{Role: "user", Content: prompt}},
		nil, "", map[string]any{"temperature": 0.5})
	if err != nil || resp.Content == "" {
		// Fallback: stitch the task messages together.
		parts := make([]string, 0, len(outcomes))
		for _, o := range outcomes {
			if o.Message != "" {
				parts = append(parts, o.Message)
			}
		}
		return strings.Join(parts, "；")
	}
	return resp.Content
}

func outcomesData(outcomes []taskOutcome) []map[string]any {
	out := make([]map[string]any, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, map[string]any{
			"task_id": o.Task.TaskID,
			"agent":   o.Task.Agent,
			"status":  o.Status,
			"message": o.Message,
		})
	}
	return out
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
