package interfaces

import "context"

// Message roles on the oracle conversation log.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in an engine-owned conversation log. The oracle
// client is stateless per call; the engine always resends the context it
// wants the oracle to see.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a structured tool invocation requested by the oracle.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ToolSchema describes a tool exposed to the oracle.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  interface{} // JSON-schema document
}

// OracleResponse is what one oracle call produced: final text, tool
// invocations, or both.
type OracleResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// Oracle is the generative model behind the Dungeon Master, treated as a
// black box with a fixed protocol contract.
type Oracle interface {
	Send(ctx context.Context, messages []Message, tools []ToolSchema) (*OracleResponse, error)
}

// Embedder turns text into a vector for similarity retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
