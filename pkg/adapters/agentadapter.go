package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/brookwillow/kiwi/pkg/agent"
	"github.com/brookwillow/kiwi/pkg/bus"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/memory"
	"github.com/brookwillow/kiwi/pkg/orchestrator"
	"github.com/brookwillow/kiwi/pkg/session"
	"github.com/brookwillow/kiwi/pkg/statemachine"
	"github.com/brookwillow/kiwi/pkg/tracker"
)

const (
	conflictReply = "抱歉，当前有更重要的任务正在进行，请稍后再试。"
	errorReply    = "抱歉，刚才的操作没有成功。"
)

// AgentAdapter consumes dispatch requests: it arbitrates the session with the
// session manager, invokes the agent runtime, stamps the session id into the
// response, and requests TTS. Agents themselves never see session ids.
type AgentAdapter struct {
	stats
	eventBus *bus.EventBus
	machine  *statemachine.Machine
	tracker  *tracker.Tracker
	manager  *agent.Manager
	orch     *orchestrator.Orchestrator
	sessions *session.Manager
	memory   *memory.Manager

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	sub     bus.Subscription
}

func NewAgentAdapter(
	eventBus *bus.EventBus,
	machine *statemachine.Machine,
	tr *tracker.Tracker,
	manager *agent.Manager,
	orch *orchestrator.Orchestrator,
	sessions *session.Manager,
	mem *memory.Manager,
) *AgentAdapter {
	return &AgentAdapter{
		eventBus: eventBus,
		machine:  machine,
		tracker:  tr,
		manager:  manager,
		orch:     orch,
		sessions: sessions,
		memory:   mem,
	}
}

func (a *AgentAdapter) Name() string { return "agent_adapter" }

func (a *AgentAdapter) Initialize() error {
	if a.manager == nil {
		return fmt.Errorf("agent_adapter: no agent runtime configured")
	}
	a.sub = a.eventBus.SubscribeAsync(bus.AgentDispatchRequest, a.HandleEvent)
	a.manager.SetPlannerRunner(a.runPlannedTask)
	return nil
}

func (a *AgentAdapter) Start() error {
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.running = true
	return nil
}

func (a *AgentAdapter) Stop() {
	a.running = false
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *AgentAdapter) Cleanup() {
	a.eventBus.Unsubscribe(a.sub)
}

func (a *AgentAdapter) HandleEvent(ev bus.Event) {
	if ev.Kind != bus.AgentDispatchRequest || !a.running {
		return
	}
	// Planner sub-task dispatches are published by this adapter for
	// observability and already executed inline; consuming them again would
	// run every task twice.
	if ev.Source == a.Name() {
		return
	}
	req, ok := ev.Payload.(bus.DispatchRequest)
	if !ok {
		return
	}
	a.countProcessed()

	a.tracker.AddTrace(ev.MessageID, a.Name(), "agent_execution_start",
		map[string]any{"agent": req.Agent, "query": req.Query}, nil)

	var sess session.Session
	var err error
	if ev.SessionAction == bus.SessionResume && ev.SessionID != "" {
		sess, err = a.sessions.Resume(ev.SessionID, req.Query)
		if err != nil {
			logger.WarnCF("agent", "Session resume rejected",
				map[string]any{"session_id": ev.SessionID, "error": err.Error()})
			a.finishUtterance(ev, req, nil, "", errorReply, tracker.StatusFailed)
			return
		}
	} else {
		cfg, ok := a.orch.Agent(req.Agent)
		if !ok {
			a.finishUtterance(ev, req, nil, "", errorReply, tracker.StatusFailed)
			return
		}
		sess, err = a.sessions.Create(req.Agent, req.UserID, cfg.Priority, cfg.Interruptible)
		if err != nil {
			if errors.Is(err, session.ErrConflict) {
				logger.InfoCF("agent", "Session refused by arbitration",
					map[string]any{"agent": req.Agent, "error": err.Error()})
				a.finishUtterance(ev, req, &agent.Response{
					Agent:   req.Agent,
					Query:   req.Query,
					Status:  agent.StatusCompleted,
					Message: conflictReply,
				}, "", conflictReply, tracker.StatusCompleted)
				return
			}
			a.finishUtterance(ev, req, nil, "", errorReply, tracker.StatusFailed)
			return
		}
	}

	actx := &agent.Context{
		UserID:         req.UserID,
		SessionContext: sess.Context,
		Parameters:     req.Parameters,
	}
	if actx.Parameters == nil {
		actx.Parameters = map[string]any{}
	}
	actx.Parameters["msg_id"] = ev.MessageID
	if a.memory != nil {
		actx.Recent = a.memory.Recent(5)
		actx.LongTerm = a.memory.LongTerm()
	}

	resp := a.manager.Execute(a.ctx, req.Agent, req.Query, actx)

	a.tracker.AddTrace(ev.MessageID, req.Agent, "agent_response", nil,
		map[string]any{"status": string(resp.Status), "message": resp.Message})

	switch resp.Status {
	case agent.StatusWaitingInput:
		ctxUpdate := map[string]any{
			"original_query": firstNonEmpty(originalQuery(sess), req.Query),
			"pending_prompt": resp.Prompt,
		}
		for k, v := range resp.Data {
			ctxUpdate[k] = v
		}
		a.sessions.SetContext(sess.ID, ctxUpdate)
		a.sessions.WaitForInput(sess.ID, resp.Prompt, "text")

		a.tracker.UpdateResponse(ev.MessageID, resp.Message)
		a.tracker.SetStatus(ev.MessageID, tracker.StatusWaitingInput)
		a.machine.HandleEvent(statemachine.AgentCompleted, "agent waiting for input")
		a.publishResponse(ev, resp, sess.ID, sessionActionFor(ev))
		a.requestTTS(ev.MessageID, resp.Prompt)

	case agent.StatusError:
		a.sessions.Fail(sess.ID)
		a.countError()
		a.finishUtterance(ev, req, resp, sess.ID, firstNonEmpty(resp.Message, errorReply), tracker.StatusFailed)

	default: // success, completed
		resumed, hasResumed, _ := a.sessions.Complete(sess.ID)
		a.finishUtterance(ev, req, resp, sess.ID, resp.Message, tracker.StatusCompleted)
		if hasResumed {
			a.replayResumed(ev.MessageID, resumed)
		}
	}
}

// finishUtterance publishes the terminal response, updates the trace and the
// state machine, and requests TTS.
func (a *AgentAdapter) finishUtterance(ev bus.Event, req bus.DispatchRequest, resp *agent.Response, sessionID, message string, status tracker.Status) {
	if resp == nil {
		resp = &agent.Response{
			Agent:   req.Agent,
			Query:   req.Query,
			Status:  agent.StatusError,
			Message: message,
		}
	}

	a.tracker.UpdateResponse(ev.MessageID, message)
	a.tracker.SetStatus(ev.MessageID, status)
	a.machine.HandleEvent(statemachine.AgentCompleted, "agent finished")
	a.publishResponse(ev, resp, sessionID, bus.SessionComplete)
	if message != "" {
		a.requestTTS(ev.MessageID, message)
	}
}

func (a *AgentAdapter) publishResponse(ev bus.Event, resp *agent.Response, sessionID string, action bus.SessionAction) {
	out := bus.NewEvent(bus.AgentResponse, a.Name(), bus.AgentResult{
		Agent:   resp.Agent,
		Query:   resp.Query,
		Status:  string(resp.Status),
		Message: resp.Message,
		Prompt:  resp.Prompt,
		Data:    resp.Data,
	}).WithMessageID(ev.MessageID)
	if sessionID != "" {
		out = out.WithSession(sessionID, action)
	}
	a.eventBus.Publish(out)
}

func (a *AgentAdapter) requestTTS(msgID, text string) {
	a.eventBus.Publish(bus.NewEvent(bus.TTSSpeakRequest, a.Name(),
		bus.SpeakRequest{Text: text}).WithMessageID(msgID))
}

// replayResumed re-issues the prompt of a session popped back to running
// after a preempting session finished.
func (a *AgentAdapter) replayResumed(msgID string, resumed session.Session) {
	prompt, _ := resumed.Context["pending_prompt"].(string)
	if prompt == "" {
		return
	}
	a.sessions.WaitForInput(resumed.ID, prompt, "text")
	logger.InfoCF("agent", "Replaying prompt of resumed session",
		map[string]any{"session_id": resumed.ID, "agent": resumed.AgentName})
	a.requestTTS(msgID, prompt)
}

// runPlannedTask executes one planner sub-task through the dispatch path:
// each task gets its own dispatch event and its own session under a planner
// scope so it cannot collide with the planner's own session.
func (a *AgentAdapter) runPlannedTask(ctx context.Context, agentName, query string, actx *agent.Context) *agent.Response {
	userID := DefaultUserID
	if actx != nil && actx.UserID != "" {
		userID = actx.UserID
	}
	scope := userID + "#planner"

	cfg, ok := a.orch.Agent(agentName)
	if !ok {
		return &agent.Response{
			Agent: agentName, Query: query,
			Status: agent.StatusError, Message: "未知的助手",
		}
	}

	sess, err := a.sessions.Create(agentName, scope, cfg.Priority, cfg.Interruptible)
	if err != nil {
		return &agent.Response{
			Agent: agentName, Query: query,
			Status: agent.StatusError, Message: conflictReply,
		}
	}

	msgID := ""
	if actx != nil {
		msgID, _ = actx.Parameters["msg_id"].(string)
	}
	a.eventBus.Publish(bus.NewEvent(bus.AgentDispatchRequest, a.Name(), bus.DispatchRequest{
		Agent:  agentName,
		Query:  query,
		UserID: scope,
	}).WithMessageID(msgID).WithSession(sess.ID, bus.SessionNew))

	subCtx := &agent.Context{UserID: scope, SessionContext: sess.Context}
	resp := a.manager.Execute(ctx, agentName, query, subCtx)

	if resp.Status == agent.StatusError {
		a.sessions.Fail(sess.ID)
	} else {
		a.sessions.Complete(sess.ID)
	}
	return resp
}

func sessionActionFor(ev bus.Event) bus.SessionAction {
	if ev.SessionAction == bus.SessionResume {
		return bus.SessionResume
	}
	return bus.SessionNew
}

func originalQuery(sess session.Session) string {
	s, _ := sess.Context["original_query"].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (a *AgentAdapter) Running() bool { return a.running }

func (a *AgentAdapter) Statistics() map[string]any { return a.snapshot() }
