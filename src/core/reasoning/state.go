package reasoning

// State is a stage of one pipeline run
type State string

const (
	StateReceived           State = "received"
	StateClassifying        State = "classifying"
	StateExtractingEntities State = "extracting_entities"
	StateDispatching        State = "dispatching"
	StateGenerating         State = "generating"
	StateFusing             State = "fusing"
	StateFinalizing         State = "finalizing"
	StateCompleted          State = "completed"
	StateErrored            State = "errored"
)

// transitions lists the forward edges. Errored is reachable from every
// non-terminal state and is not listed.
var transitions = map[State]State{
	StateReceived:           StateClassifying,
	StateClassifying:        StateExtractingEntities,
	StateExtractingEntities: StateDispatching,
	StateDispatching:        StateGenerating,
	StateGenerating:         StateFusing,
	StateFusing:             StateFinalizing,
	StateFinalizing:         StateCompleted,
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateErrored {
		return true
	}
	return transitions[from] == to
}
