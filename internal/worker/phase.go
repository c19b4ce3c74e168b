package worker

type Phase int

const (
	PhaseParsed Phase = iota
	PhaseInstalling
	PhaseInstalled
	PhaseActivating
	PhaseActivated
	PhaseRedundant
)

func (p Phase) String() string {
	switch p {
	case PhaseParsed:
		return "parsed"
	case PhaseInstalling:
		return "installing"
	case PhaseInstalled:
		return "installed"
	case PhaseActivating:
		return "activating"
	case PhaseActivated:
		return "activated"
	case PhaseRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// PhaseObserver is notified of every generation phase change. Calls are
// made synchronously from the lifecycle goroutine.
type PhaseObserver interface {
	PhaseChanged(cacheName string, phase Phase)
}

type PhaseObserverFunc func(cacheName string, phase Phase)

func (f PhaseObserverFunc) PhaseChanged(cacheName string, phase Phase) {
	f(cacheName, phase)
}
