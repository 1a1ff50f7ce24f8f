package repository

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/statekit"
)

// ErrIllegalTransition indicates an event that the installation lifecycle
// does not accept in the current state.
var ErrIllegalTransition = errors.New("illegal installation state transition")

// Lifecycle phases. absent has no record in the index.
const (
	phaseAbsent     = "absent"
	phaseInstalling = "installing"
	phaseInstalled  = "installed"
	phaseFailed     = "failed"
)

// Lifecycle events.
const (
	EventRequest = "REQUEST"
	EventSucceed = "SUCCEED"
	EventFail    = "FAIL"
	EventRecover = "RECOVER"

	// restore events move a fresh machine to the state read from disk.
	eventRestoreInstalling = "RESTORE_INSTALLING"
	eventRestoreInstalled  = "RESTORE_INSTALLED"
	eventRestoreFailed     = "RESTORE_FAILED"
)

// TransitionError reports an event rejected by the lifecycle.
type TransitionError struct {
	Key   artifact.Key
	From  string
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s does not accept %s", e.Key, e.From, e.Event)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// lifecycleContext is the statekit context of one record.
type lifecycleContext struct {
	Key artifact.Key
}

// lifecycle tracks the installation state of one composite key.
type lifecycle struct {
	key     artifact.Key
	interp  *statekit.Interpreter[lifecycleContext]
	entered []string
}

// newLifecycle builds the state machine for key, positioned at the state
// of rec, or absent when rec is nil.
func newLifecycle(key artifact.Key, rec *artifact.Artifact) (*lifecycle, error) {
	lc := &lifecycle{key: key}

	machine, err := statekit.NewMachine[lifecycleContext]("artifact-installation").
		WithInitial(phaseAbsent).
		WithContext(lifecycleContext{Key: key}).
		WithAction("recordEntry", func(_ *lifecycleContext, event statekit.Event) {
			lc.entered = append(lc.entered, string(event.Type))
		}).
		State(phaseAbsent).
		On(EventRequest).Target(phaseInstalling).
		On(eventRestoreInstalling).Target(phaseInstalling).
		On(eventRestoreInstalled).Target(phaseInstalled).
		On(eventRestoreFailed).Target(phaseFailed).Done().
		State(phaseInstalling).
		OnEntry("recordEntry").
		On(EventSucceed).Target(phaseInstalled).
		On(EventFail).Target(phaseFailed).
		On(EventRecover).Target(phaseAbsent).Done().
		State(phaseInstalled).
		OnEntry("recordEntry").
		On(EventRequest).Target(phaseInstalled).Done().
		State(phaseFailed).
		OnEntry("recordEntry").
		On(EventRequest).Target(phaseInstalling).Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build installation lifecycle: %w", err)
	}

	lc.interp = statekit.NewInterpreter(machine)
	lc.interp.Start()

	if rec != nil {
		switch rec.State {
		case artifact.StateInstalling:
			lc.send(eventRestoreInstalling)
		case artifact.StateInstalled:
			lc.send(eventRestoreInstalled)
		case artifact.StateFailed:
			lc.send(eventRestoreFailed)
		}
	}
	return lc, nil
}

func (lc *lifecycle) send(event string) {
	lc.interp.Send(statekit.Event{Type: statekit.EventType(event)})
}

func (lc *lifecycle) phase() string {
	return string(lc.interp.State().Value)
}

// fire sends event and returns the resulting record state, "" for absent.
func (lc *lifecycle) fire(event string) (artifact.State, error) {
	from := lc.phase()
	lc.send(event)
	to := lc.phase()

	// installed accepts REQUEST as a self-transition; any other event
	// that leaves the phase unchanged was rejected.
	if from == to && !(from == phaseInstalled && event == EventRequest) {
		return "", &TransitionError{Key: lc.key, From: from, Event: event}
	}
	return stateOf(to), nil
}

func (lc *lifecycle) stop() {
	lc.interp.Stop()
}

func stateOf(phase string) artifact.State {
	switch phase {
	case phaseInstalling:
		return artifact.StateInstalling
	case phaseInstalled:
		return artifact.StateInstalled
	case phaseFailed:
		return artifact.StateFailed
	}
	return ""
}
