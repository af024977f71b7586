package server

const (
	HealthzPath        = "/healthz"
	OptionPath         = "/qa/option"
	CustomQuestionPath = "/qa/get_custom_question"
	AskPath            = "/qa/ask"
	UpvotePath         = "/qa/upvote"
	WebSocketPath      = "/qa/ws"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type OptionResponse struct {
	DataProfiles []string `json:"data_profiles"`
	ModelIDs     []string `json:"bedrock_model_ids"`
}

type CustomQuestionResponse struct {
	CustomQuestion []string `json:"custom_question"`
}

// ContentType tags a websocket envelope.
type ContentType string

const (
	ContentCommon    ContentType = "common"
	ContentException ContentType = "exception"
	ContentEnd       ContentType = "end"
)

// Envelope is the websocket message sent for each piece of a streamed answer.
type Envelope struct {
	SessionID   string      `json:"session_id"`
	ContentType ContentType `json:"content_type"`
	Content     string      `json:"content"`
}
