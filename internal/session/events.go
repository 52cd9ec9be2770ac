package session

// State is the lifecycle state of the recording session.
type State int

const (
	// Idle means no recording is in progress; Start is valid.
	Idle State = iota
	// Recording means audio is being captured and delivered.
	Recording
	// Error means the session ended abnormally; a fresh Start is required.
	Error
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Transcript is the latest known transcription result for the session.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Final    bool   `json:"final"`
}

// Observer receives session events. All callbacks are optional and are
// invoked synchronously from pipeline goroutines, so they must not block
// and must not call back into the controller.
type Observer struct {
	OnStateChange func(State)
	OnTranscript  func(Transcript)
	OnError       func(error)
}

func (o Observer) notifyState(s State) {
	if o.OnStateChange != nil {
		o.OnStateChange(s)
	}
}

func (o Observer) notifyTranscript(t Transcript) {
	if o.OnTranscript != nil {
		o.OnTranscript(t)
	}
}

func (o Observer) notifyError(err error) {
	if o.OnError != nil {
		o.OnError(err)
	}
}
