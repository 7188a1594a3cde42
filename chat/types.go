// Package chat defines the request and response model of the remote chat
// completion service, the clients that reach it, and the helpers that turn a
// response into text suitable for posting.
package chat

// DefaultChatModel is used when neither the caller nor the configuration
// names a model.
const DefaultChatModel = "command-r-plus"

// GeneralErrorMessage is shown to users when the remote call fails without a
// structured, user-presentable message.
const GeneralErrorMessage = "Something went wrong. This has been reported. Please try again later."

// TruncationPolicy tells the remote service how to trim conversation history
// that exceeds the model's context.
type TruncationPolicy string

const (
	TruncationOff               TruncationPolicy = "OFF"
	TruncationAuto              TruncationPolicy = "AUTO"
	TruncationAutoPreserveOrder TruncationPolicy = "AUTO_PRESERVE_ORDER"
)

// Request is the body of a chat call.
type Request struct {
	Message          string           `json:"message" validate:"required"`
	Model            string           `json:"model"`
	ConversationID   string           `json:"conversation_id,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty" validate:"omitempty,gte=0"`
	Preamble         string           `json:"preamble,omitempty"`
	Tools            []Tool           `json:"tools,omitempty" validate:"omitempty,dive"`
	PromptTruncation TruncationPolicy `json:"prompt_truncation"`
}

// Tool describes a tool the model may call.
type Tool struct {
	Name                 string                         `json:"name" validate:"required"`
	DisplayName          string                         `json:"display_name,omitempty"`
	Description          string                         `json:"description,omitempty"`
	ParameterDefinitions map[string]ParameterDefinition `json:"parameter_definitions,omitempty"`
}

// ParameterDefinition describes one tool argument.
type ParameterDefinition struct {
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
}

// Response is the non-streamed reply of the chat service. Only the fields the
// relay reads are modelled.
type Response struct {
	Text           string     `json:"text"`
	GenerationID   string     `json:"generation_id,omitempty"`
	ResponseID     string     `json:"response_id,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Citations      []Citation `json:"citations,omitempty"`
	Documents      []Document `json:"documents,omitempty"`
}

// Citation attributes the span [Start, End) of the reply text to documents.
type Citation struct {
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Text        string   `json:"text"`
	DocumentIDs []string `json:"document_ids"`
}

// Document is a retrieved source returned alongside a reply. Tool specific
// metadata travels as strings in Fields.
type Document struct {
	ID       string            `json:"document_id"`
	Title    string            `json:"title,omitempty"`
	URL      string            `json:"url,omitempty"`
	Text     string            `json:"text,omitempty"`
	ToolName string            `json:"tool_name,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// ReplyResult is what the reply pipeline hands back to a transport. On
// failure BotReplyText and ResponseID are empty and ErrorMessage is set; on
// success ErrorMessage is empty.
type ReplyResult struct {
	BotReplyText string `json:"current_bot_reply"`
	ResponseID   string `json:"response_id"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Failed reports whether the result carries an error instead of a reply.
func (r ReplyResult) Failed() bool {
	return r.ErrorMessage != ""
}

// Project2025ToolName is the name of the Project 2025 retrieval tool.
const Project2025ToolName = "project_2025"

// Project2025Tool returns the descriptor of the Project 2025 retrieval tool,
// enabled by default for every reply.
func Project2025Tool() Tool {
	return Tool{
		Name:        Project2025ToolName,
		DisplayName: "Project 2025",
		Description: "Retrieves our analysis of Project 2025.",
		ParameterDefinitions: map[string]ParameterDefinition{
			"query": {
				Description: "Query for retrieval.",
				Type:        "str",
				Required:    true,
			},
		},
	}
}
