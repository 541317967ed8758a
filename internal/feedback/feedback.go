// Package feedback tracks the thumbs up/down widget as an explicit state
// machine so that the text box and its submit action behave the same no
// matter how often the page is re-rendered.
package feedback

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTransition is returned for an event the current state does not accept.
var ErrInvalidTransition = errors.New("invalid feedback transition")

type State string

const (
	Idle         State = "idle"
	AwaitingText State = "awaiting_text"
	Submitted    State = "submitted"
)

type Sentiment string

const (
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
)

type Event string

const (
	Up     Event = "up"
	Down   Event = "down"
	Submit Event = "submit"
)

// ParseEvent maps a route segment to an event.
func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case Up, Down, Submit:
		return e, nil
	}
	return "", fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, s)
}

// Machine is the widget state. The zero value is Idle.
type Machine struct {
	State     State
	Sentiment Sentiment
}

func (m Machine) current() State {
	if m.State == "" {
		return Idle
	}
	return m.State
}

// Apply returns the machine after ev. On error the receiver is returned
// unchanged. The submitted text is not retained.
func (m Machine) Apply(ev Event, text string) (Machine, error) {
	switch ev {
	case Up:
		return Machine{State: Submitted, Sentiment: Positive}, nil
	case Down:
		return Machine{State: AwaitingText}, nil
	case Submit:
		if m.current() != AwaitingText {
			return m, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, m.current())
		}
		return Machine{State: Submitted, Sentiment: Negative}, nil
	}
	return m, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
}

// ShowText reports whether the free-text box and submit button are visible.
func (m Machine) ShowText() bool {
	return m.current() == AwaitingText
}

// Prompt labels the free-text box.
const Prompt = "Please provide your feedback to help us improve."

// Message is the acknowledgement shown for the current state.
func (m Machine) Message() string {
	if m.current() != Submitted {
		return ""
	}
	if m.Sentiment == Positive {
		return "Thank you for your positive feedback!"
	}
	return "Thank you for your feedback!"
}

// String encodes the machine for the session cookie.
func (m Machine) String() string {
	if m.Sentiment == "" {
		return string(m.current())
	}
	return string(m.current()) + ":" + string(m.Sentiment)
}

// Parse decodes a value produced by String. Unrecognised input yields Idle.
func Parse(s string) Machine {
	state, sentiment, _ := strings.Cut(s, ":")
	m := Machine{State: State(state), Sentiment: Sentiment(sentiment)}
	switch m.State {
	case AwaitingText:
		return Machine{State: AwaitingText}
	case Submitted:
		if m.Sentiment == Positive || m.Sentiment == Negative {
			return m
		}
	}
	return Machine{State: Idle}
}
