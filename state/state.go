package state

import (
	"errors"
	"sync"
)

// Race lifecycle state IDs. The lifecycle only ever moves forward.
const (
	StateWaiting  = "waiting"
	StateRacing   = "racing"
	StateFinished = "finished"
)

// Action types the race states handle.
const (
	ActionStart  = "start"
	ActionFinish = "finish"
)

// Action is a player request dispatched into the current state.
type Action struct {
	Type string
	// TotalTime is the client-reported race time in ms for finish actions.
	TotalTime *int64
}

// StateMachine drives a room through its lifecycle.
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// State is one lifecycle phase of a room.
type State interface {
	OnEnter()
	OnExit()
	GetID() string
	HandleAction(player Player, action Action) error
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine is a guarded state machine. Transitions without a
// registered condition are allowed; a registered condition can veto.
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	if conditions, exists := sm.transitions[currentID]; exists {
		if condition, exists := conditions[newID]; exists {
			if condition != nil && !condition() {
				return ErrTransitionNotAllowed
			}
		}
	}

	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// RoomStateBase carries the pieces every race state shares.
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {
}

func (s *RoomStateBase) OnExit() {
}

func (s *RoomStateBase) HandleAction(player Player, action Action) error {
	return nil
}
