package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/attrib-app/attrib/internal/feedback"
	"github.com/attrib-app/attrib/internal/model"
)

const (
	sessionName = "attrib"
	uploadKey   = "upload"
	feedbackKey = "feedback"
	signalsKey  = "signals"
)

// session returns the visitor's session. A cookie that no longer decodes
// (for example after a secret change) yields a fresh session.
func (s *Server) session(r *http.Request) *sessions.Session {
	session, err := s.sessionStore.Get(r, sessionName)
	if err != nil {
		s.logger.Debug("discarding unreadable session", "error", err)
	}
	return session
}

func uploadID(session *sessions.Session) string {
	id, _ := session.Values[uploadKey].(string)
	return id
}

// savedSignals returns the widget state of the last run so a full page load,
// such as the redirect after an upload, keeps the visitor's choices.
func savedSignals(session *sessions.Session) model.Signals {
	raw, _ := session.Values[signalsKey].(string)
	if raw == "" {
		return model.DefaultSignals()
	}
	sig := model.DefaultSignals()
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		return model.DefaultSignals()
	}
	return sig.Normalize()
}

func saveSignals(session *sessions.Session, sig model.Signals) error {
	raw, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	session.Values[signalsKey] = string(raw)
	return nil
}

func feedbackState(session *sessions.Session) feedback.Machine {
	v, _ := session.Values[feedbackKey].(string)
	return feedback.Parse(v)
}

// popFlash returns the first pending flash message, if any. The caller must
// save the session for the flash to be consumed.
func popFlash(session *sessions.Session) string {
	for _, f := range session.Flashes() {
		if msg, ok := f.(string); ok {
			return msg
		}
	}
	return ""
}
