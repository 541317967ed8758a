package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/attrib-app/attrib/internal/attribution"
	"github.com/attrib-app/attrib/internal/dataset"
	"github.com/attrib-app/attrib/internal/feedback"
	"github.com/attrib-app/attrib/internal/model"
	"github.com/attrib-app/attrib/internal/store"
)

const pageTitle = "Marketing Attribution Models"

type HealthResponse struct {
	Status        string `json:"status"`
	UploadsCached int    `json:"uploads_cached"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountUploads(r.Context())
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := HealthResponse{
		Status:        "ok",
		UploadsCached: count,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// handleIndex renders the full page with the widget state of the visitor's
// last run, or the defaults on a first visit.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)
	flash := popFlash(session)
	if flash != "" {
		if err := session.Save(r, w); err != nil {
			s.logger.Warn("failed to save session", "error", err)
		}
	}

	sig := savedSignals(session)
	app := s.buildView(r.Context(), uploadID(session), sig)
	app.Flash = flash

	data, err := s.pageData(sig, feedbackState(session), app)
	if err != nil {
		s.logger.Error("failed to build page", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	s.renderPage(w, pageTitle, data)
}

// handleUpload caches the posted CSV and points the session at it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	session := s.session(r)

	if msg := s.storeUpload(r.Context(), r, session.Values); msg != "" {
		session.AddFlash(msg)
	}
	if err := session.Save(r, w); err != nil {
		s.logger.Warn("failed to save session", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// storeUpload saves the request's file and records its id in values. It
// returns a message for the visitor when the upload is rejected.
func (s *Server) storeUpload(ctx context.Context, r *http.Request, values map[interface{}]interface{}) string {
	tooLarge := fmt.Sprintf("The file is too large. The limit is %s.", humanize.Bytes(uint64(s.maxUpload)))
	if r.ContentLength > s.maxUpload {
		return tooLarge
	}

	var maxErr *http.MaxBytesError
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.As(err, &maxErr) {
			return tooLarge
		}
		return "Choose a CSV file to upload."
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if errors.As(err, &maxErr) {
			return tooLarge
		}
		return "Failed to read the uploaded file."
	}
	if _, err := dataset.Parse(bytes.NewReader(data)); err != nil {
		return fmt.Sprintf("Could not read %s as CSV: %v", header.Filename, err)
	}

	upload, err := s.store.SaveUpload(ctx, filepath.Base(header.Filename), data)
	if err != nil {
		s.logger.Error("failed to cache upload", "error", err)
		return "Failed to store the uploaded file."
	}

	if old, _ := values[uploadKey].(string); old != "" {
		if err := s.store.DeleteUpload(ctx, old); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to drop previous upload", "id", old, "error", err)
		}
	}
	values[uploadKey] = upload.ID

	s.logger.Info("upload cached", "id", upload.ID, "filename", upload.Filename, "bytes", upload.Size)
	return ""
}

// handleRun re-executes the flow for the posted widget state and morphs #app.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	// Read signals BEFORE creating SSE (SSE consumes the request body)
	sig := model.DefaultSignals()
	if err := datastar.ReadSignals(r, &sig); err != nil {
		sse := datastar.NewSSE(w, r)
		_ = sse.ConsoleError(fmt.Errorf("failed to read signals: %w", err))
		return
	}

	normalized := sig.Normalize()
	session := s.session(r)
	if err := saveSignals(session, normalized); err != nil {
		s.logger.Warn("failed to keep widget state", "error", err)
	} else if err := session.Save(r, w); err != nil {
		s.logger.Warn("failed to save session", "error", err)
	}

	app := s.buildView(r.Context(), uploadID(session), normalized)
	html, err := s.fragment("app", app)

	sse := datastar.NewSSE(w, r)
	if err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	if normalized != sig {
		if err := sse.MarshalAndPatchSignals(normalized); err != nil {
			_ = sse.ConsoleError(err)
		}
	}
	if err := sse.PatchElements(html); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// exportCSV runs the current request and encodes its table.
func (s *Server) exportCSV(ctx context.Context, id string, sig model.Signals) ([]byte, error) {
	ds, _, err := s.loadDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	table, _, err := s.attribute(ctx, ds, sig)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, fmt.Errorf("%w: no result to export", attribution.ErrExport)
	}
	return table.EncodeCSV()
}

// handleExport patches #download with a data URI link to the CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sig := model.DefaultSignals()
	if err := datastar.ReadSignals(r, &sig); err != nil {
		sse := datastar.NewSSE(w, r)
		_ = sse.ConsoleError(fmt.Errorf("failed to read signals: %w", err))
		return
	}

	var view downloadView
	csv, err := s.exportCSV(r.Context(), uploadID(s.session(r)), sig.Normalize())
	if err != nil {
		view.Error = s.reportError(err)
	} else {
		view.Href = template.URL("data:text/csv;base64," + base64.StdEncoding.EncodeToString(csv))
	}
	html, err := s.fragment("download", view)

	sse := datastar.NewSSE(w, r)
	if err != nil {
		_ = sse.ConsoleError(err)
		return
	}
	if err := sse.PatchElements(html); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// handleExportCSV serves the same CSV as a plain download. Widget state comes
// from the datastar query parameter; anything missing takes its default.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	sig := model.DefaultSignals()
	if r.URL.Query().Has("datastar") {
		if err := datastar.ReadSignals(r, &sig); err != nil {
			http.Error(w, "Invalid signals", http.StatusBadRequest)
			return
		}
	}

	csv, err := s.exportCSV(r.Context(), uploadID(s.session(r)), sig.Normalize())
	if err != nil {
		http.Error(w, s.reportError(err), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)
	_, _ = w.Write(csv)
}

type feedbackSignals struct {
	FeedbackText string `json:"feedbackText"`
}

// handleFeedback advances the feedback widget. Nothing here touches the
// attribution flow and failures only show inside the widget.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var sig feedbackSignals
	if err := datastar.ReadSignals(r, &sig); err != nil {
		s.logger.Debug("ignoring unreadable feedback signals", "error", err)
	}

	session := s.session(r)
	current := feedbackState(session)

	next := current
	ev, err := feedback.ParseEvent(chi.URLParam(r, "event"))
	if err == nil {
		next, err = current.Apply(ev, sig.FeedbackText)
	}
	if err == nil {
		session.Values[feedbackKey] = next.String()
		if saveErr := session.Save(r, w); saveErr != nil {
			s.logger.Warn("failed to save session", "error", saveErr)
		}
		s.logger.Debug("feedback", "event", ev, "state", next.String(), "text_length", len(sig.FeedbackText))
	}

	html, renderErr := s.fragment("feedback", s.feedbackView(next, err))

	sse := datastar.NewSSE(w, r)
	if renderErr != nil {
		_ = sse.ConsoleError(renderErr)
		return
	}
	if err == nil && ev == feedback.Submit {
		_ = sse.MarshalAndPatchSignals(feedbackSignals{})
	}
	if err := sse.PatchElements(html); err != nil {
		_ = sse.ConsoleError(err)
	}
}
