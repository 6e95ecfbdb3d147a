package protocol

import "encoding/json"

// JSON-RPC 2.0 message types for serve mode, where another program drives
// evaluations over stdin/stdout.

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"` // string or int; nil for notifications
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application-specific error codes.
const (
	CodeTaskNotFound     = -32000
	CodeTaskMalformed    = -32001
	CodeEvaluationFailed = -32002
	CodeRunNotFound      = -32003
)

// Supported methods.
const (
	MethodTasksList    = "tasks.list"
	MethodTaskValidate = "task.validate"
	MethodTaskEvaluate = "task.evaluate"
	MethodRunsList     = "runs.list"
	MethodRunsGet      = "runs.get"
	MethodMethods      = "rpc.methods"
)

// NewResponse creates a successful response.
func NewResponse(id any, result any) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id any, code int, message string, data any) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// TasksListParams holds parameters for "tasks.list".
type TasksListParams struct {
	Category string `json:"category,omitempty"`
}

// TaskValidateParams holds parameters for "task.validate". Exactly one of
// Path or Task is used; Task wins when both are set.
type TaskValidateParams struct {
	Path string          `json:"path,omitempty"`
	Task json.RawMessage `json:"task,omitempty"`
}

// TaskEvaluateParams holds parameters for "task.evaluate". TaskID names a
// task in the tasks directory; Task supplies one inline.
type TaskEvaluateParams struct {
	TaskID string          `json:"task_id,omitempty"`
	Task   json.RawMessage `json:"task,omitempty"`
}

// RunsGetParams holds parameters for "runs.get".
type RunsGetParams struct {
	RunID string `json:"run_id"`
}

// TaskInfo describes a task in the tasks.list response.
type TaskInfo struct {
	ID         string `json:"task_id"`
	Category   string `json:"category,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Path       string `json:"path"`
	Turns      int    `json:"revision_turns,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ValidateResult is the task.validate response.
type ValidateResult struct {
	Valid  bool     `json:"valid"`
	TaskID string   `json:"task_id,omitempty"`
	Errors []string `json:"errors,omitempty"`
}
