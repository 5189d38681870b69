package reasoning

import (
	"algomind/src/core/model"
)

type EventType string

const (
	EventReasoningStep EventType = "reasoning_step"
	EventFinalResponse EventType = "final_response"
	EventError         EventType = "error"
)

// Event is one message of a pipeline run. Content is a *model.ReasoningStep, a
// *model.PipelineResult or an ErrorContent depending on Type.
type Event struct {
	Type    EventType `json:"type"`
	Content any       `json:"content"`
}

// ErrorContent is the payload of an error event
type ErrorContent struct {
	Message    string `json:"message"`
	ResponseID string `json:"responseId"`
}

// Terminal reports whether e ends the run
func (e Event) Terminal() bool {
	return e.Type == EventFinalResponse || e.Type == EventError
}

// Step returns the reasoning step carried by e
func (e Event) Step() (*model.ReasoningStep, bool) {
	s, ok := e.Content.(*model.ReasoningStep)
	return s, ok && e.Type == EventReasoningStep
}

// Result returns the pipeline result carried by a final_response event
func (e Event) Result() (*model.PipelineResult, bool) {
	r, ok := e.Content.(*model.PipelineResult)
	return r, ok && e.Type == EventFinalResponse
}
