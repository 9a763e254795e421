package domain

const (
	EventNameSessionCreated   = "session.created"
	EventNameSessionJoined    = "session.joined"
	EventNameAnswerRecorded   = "answer.recorded"
	EventNameSessionCompleted = "session.completed"
)

type EventSessionCreated struct {
	Session Session
}

func (EventSessionCreated) Name() string { return EventNameSessionCreated }

type EventSessionJoined struct {
	Session Session
	Player  string
}

func (EventSessionJoined) Name() string { return EventNameSessionJoined }

type EventAnswerRecorded struct {
	SessionID  string
	Player     string
	QuestionID string
	Correct    bool
	TimedOut   bool
}

func (EventAnswerRecorded) Name() string { return EventNameAnswerRecorded }

type EventSessionCompleted struct {
	Session Session
}

func (EventSessionCompleted) Name() string { return EventNameSessionCompleted }
