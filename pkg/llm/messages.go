// Message types and functionality
package llm

// Message represents a single chat message
type Message struct {
	Role       MessageRole    `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MessageRole defines the role of a message sender
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// NewTextMessage creates a new Message with the given role and text
func NewTextMessage(role MessageRole, text string) Message {
	return Message{
		Role:    role,
		Content: text,
	}
}

// NewToolMessage creates a tool result message answering the given tool call
func NewToolMessage(toolCallID, result string) Message {
	return Message{
		Role:       RoleTool,
		Content:    result,
		ToolCallID: toolCallID,
	}
}

// GetText returns the text content of the message
func (m Message) GetText() string {
	return m.Content
}

// SetText replaces the text content of the message
func (m *Message) SetText(text string) {
	m.Content = text
}

// AddToolCall appends a tool call request to the message
func (m *Message) AddToolCall(toolCall ToolCall) {
	m.ToolCalls = append(m.ToolCalls, toolCall)
}

// HasToolCalls checks if the message carries tool call requests
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// SetMetadata sets a metadata key-value pair
func (m *Message) SetMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// GetMetadata retrieves a metadata value by key
func (m Message) GetMetadata(key string) (any, bool) {
	if m.Metadata == nil {
		return nil, false
	}
	value, exists := m.Metadata[key]
	return value, exists
}

// DeepCopy creates a deep copy of the Message, including tool calls and metadata
func (m Message) DeepCopy() Message {
	out := Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}

	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}

	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}

	return out
}
