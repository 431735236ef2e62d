package reorder

// DragState is the state of a pointer-drag gesture.
type DragState int

const (
	StateIdle DragState = iota
	StateDragging
	StateDropped
	StateCancelled
)

func (s DragState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateDropped:
		return "dropped"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DragEvent is an input to the drag machine.
type DragEvent string

const (
	EventStart DragEvent = "start"
	EventOver  DragEvent = "over"
	EventDrop  DragEvent = "drop"
	EventEnd   DragEvent = "end"
)

// eventDropEmpty is a drop with no usable target: none was recorded, or it
// is the source itself.
const eventDropEmpty DragEvent = "drop-empty"

var transitions = map[DragState]map[DragEvent]DragState{
	StateIdle: {
		EventStart: StateDragging,
		EventEnd:   StateIdle,
	},
	StateDragging: {
		EventOver:      StateDragging,
		EventDrop:      StateDropped,
		eventDropEmpty: StateCancelled,
		EventEnd:       StateIdle,
	},
	StateDropped: {
		EventStart: StateDragging,
		EventEnd:   StateIdle,
	},
	StateCancelled: {
		EventStart: StateDragging,
		EventEnd:   StateIdle,
	},
}

// dragMachine records the transient part of a gesture. The item list is
// never touched here; only Drop hands a move to the engine.
type dragMachine struct {
	state  DragState
	source int
	target int
}

func newDragMachine() dragMachine {
	return dragMachine{state: StateIdle, source: -1, target: -1}
}

func (m *dragMachine) allowed(event DragEvent) (DragState, bool) {
	next, ok := transitions[m.state][event]
	return next, ok
}

func (m *dragMachine) start(index int) bool {
	next, ok := m.allowed(EventStart)
	if !ok {
		return false
	}
	m.state = next
	m.source = index
	m.target = -1
	return true
}

func (m *dragMachine) over(index int) bool {
	if _, ok := m.allowed(EventOver); !ok {
		return false
	}
	if index == m.source {
		m.target = -1
		return true
	}
	m.target = index
	return true
}

// drop resolves the gesture and returns the move it implies, if any. It
// ends in StateDropped with a move, or StateCancelled without one.
func (m *dragMachine) drop() (from, to int, ok bool) {
	event := EventDrop
	if m.target < 0 || m.target == m.source {
		event = eventDropEmpty
	}
	next, allowed := m.allowed(event)
	if !allowed {
		return 0, 0, false
	}
	m.state = next
	return m.source, m.target, next == StateDropped
}

// end always returns the machine to idle and clears transient marks.
func (m *dragMachine) end() {
	*m = newDragMachine()
}
