package upstream

// The upstream emits a stream of tagged events. Decoded frames use
// inconsistent key casing (snake_case and camelCase), so all readers go
// through pick, which accepts both. Raw maps are retained on every variant
// so unrecognized payloads survive a round trip.

// Event is the decoded upstream event union.
type Event interface {
	// Raw returns the decoded frame as received.
	Raw() map[string]any
	isEvent()
}

// Init opens a conversation and names the baseline task.
type Init struct {
	ConversationID string
	TaskID         string
	raw            map[string]any
}

// ClientActions carries a batch of actions to apply client-side.
type ClientActions struct {
	Actions []Action
	raw     map[string]any
}

// Finished marks the end of the agent turn.
type Finished struct {
	raw map[string]any
}

// Opaque wraps events with no recognized tag; the translator ignores them
// but they stay observable.
type Opaque struct {
	raw map[string]any
}

func (e *Init) Raw() map[string]any          { return e.raw }
func (e *ClientActions) Raw() map[string]any { return e.raw }
func (e *Finished) Raw() map[string]any      { return e.raw }
func (e *Opaque) Raw() map[string]any        { return e.raw }

func (*Init) isEvent()          {}
func (*ClientActions) isEvent() {}
func (*Finished) isEvent()      {}
func (*Opaque) isEvent()        {}

// Action is one entry of a ClientActions batch.
type Action interface{ isAction() }

// AppendContent streams a fragment of agent output text.
type AppendContent struct {
	Text string
}

// AddMessages attaches whole messages (agent output or tool calls) to a task.
type AddMessages struct {
	TaskID   string
	Messages []TaskMessage
}

// CreateTask announces a new task; the gateway has no use for it beyond
// logging.
type CreateTask struct {
	Raw map[string]any
}

// ToolCallAction and ToolResponseAction appear on some upstream paths; the
// translator does not consume them but they are classified for logging.
type ToolCallAction struct {
	Raw map[string]any
}

type ToolResponseAction struct {
	Raw map[string]any
}

// OpaqueAction preserves unrecognized action tags.
type OpaqueAction struct {
	Raw map[string]any
}

func (AppendContent) isAction()      {}
func (AddMessages) isAction()        {}
func (CreateTask) isAction()         {}
func (ToolCallAction) isAction()     {}
func (ToolResponseAction) isAction() {}
func (OpaqueAction) isAction()       {}

// TaskMessage is one message inside an AddMessages action.
type TaskMessage struct {
	Text     string       // agent_output.text when present
	ToolCall *MCPToolCall // call_mcp_tool when present
}

// MCPToolCall is a structured tool invocation from the agent.
type MCPToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ParseEvent classifies a decoded frame into the event union.
func ParseEvent(data map[string]any) Event {
	if data == nil {
		return &Opaque{raw: map[string]any{}}
	}
	if init, ok := pickMap(data, "init"); ok {
		return &Init{
			ConversationID: pickString(init, "conversation_id", "conversationId"),
			TaskID:         pickString(init, "task_id", "taskId"),
			raw:            data,
		}
	}
	if ca, ok := pickMap(data, "client_actions", "clientActions"); ok {
		ev := &ClientActions{raw: data}
		for _, a := range pickList(ca, "actions", "Actions") {
			if am, ok := a.(map[string]any); ok {
				ev.Actions = append(ev.Actions, parseAction(am))
			}
		}
		return ev
	}
	if _, ok := data["finished"]; ok {
		return &Finished{raw: data}
	}
	return &Opaque{raw: data}
}

func parseAction(a map[string]any) Action {
	if ap, ok := pickMap(a, "append_to_message_content", "appendToMessageContent"); ok {
		msg, _ := pickMap(ap, "message")
		out, _ := pickMap(msg, "agent_output", "agentOutput")
		return AppendContent{Text: pickString(out, "text")}
	}
	if am, ok := pickMap(a, "add_messages_to_task", "addMessagesToTask"); ok {
		act := AddMessages{TaskID: pickString(am, "task_id", "taskId")}
		for _, m := range pickList(am, "messages") {
			if mm, ok := m.(map[string]any); ok {
				act.Messages = append(act.Messages, parseTaskMessage(mm))
			}
		}
		return act
	}
	if ct, ok := pickMap(a, "create_task", "createTask"); ok {
		return CreateTask{Raw: ct}
	}
	if tc, ok := pickMap(a, "tool_call", "toolCall"); ok {
		return ToolCallAction{Raw: tc}
	}
	if tr, ok := pickMap(a, "tool_response", "toolResponse"); ok {
		return ToolResponseAction{Raw: tr}
	}
	return OpaqueAction{Raw: a}
}

func parseTaskMessage(m map[string]any) TaskMessage {
	var out TaskMessage
	if tc, ok := pickMap(m, "tool_call", "toolCall"); ok {
		if call, ok := pickMap(tc, "call_mcp_tool", "callMcpTool"); ok {
			if name := pickString(call, "name"); name != "" {
				args, _ := pickMap(call, "args")
				out.ToolCall = &MCPToolCall{
					ID:   pickString(tc, "tool_call_id", "toolCallId"),
					Name: name,
					Args: args,
				}
			}
		}
	}
	if ao, ok := pickMap(m, "agent_output", "agentOutput"); ok {
		out.Text = pickString(ao, "text")
	}
	return out
}

// Kind names an event for log lines.
func Kind(ev Event) string {
	switch e := ev.(type) {
	case *Init:
		return "init"
	case *Finished:
		return "finished"
	case *ClientActions:
		if len(e.Actions) == 0 {
			return "client_actions(empty)"
		}
		return "client_actions"
	default:
		return "unknown"
	}
}

// pick returns the first value present under any of the given keys.
func pick(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func pickMap(m map[string]any, keys ...string) (map[string]any, bool) {
	v, ok := pick(m, keys...)
	if !ok {
		return nil, false
	}
	mm, ok := v.(map[string]any)
	return mm, ok
}

func pickString(m map[string]any, keys ...string) string {
	v, ok := pick(m, keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func pickList(m map[string]any, keys ...string) []any {
	v, ok := pick(m, keys...)
	if !ok {
		return nil
	}
	l, _ := v.([]any)
	return l
}
