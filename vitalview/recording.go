package main

import (
	"errors"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/session"
	"github.com/itohio/govitals/pkg/store"
)

// handleRecord starts a recording after asking for the patient, or stops
// the current one.
func handleRecord(state *appState) {
	state.mu.Lock()
	recording := state.recorder != nil
	state.mu.Unlock()

	if recording {
		rec := state.stopRecording(session.DetailRecordingStopped)
		state.recordBtn.SetText("Record")
		state.recordBtn.SetIcon(theme.MediaRecordIcon())
		if rec != nil {
			dialog.ShowInformation("Recording saved", summaryText(rec, rec.Summary()), state.window)
		}
		return
	}

	nameEntry := widget.NewEntry()
	nameEntry.SetPlaceHolder("Anonymous")
	ageEntry := widget.NewEntry()
	ageEntry.SetPlaceHolder("?")

	items := []*widget.FormItem{
		widget.NewFormItem("Patient name", nameEntry),
		widget.NewFormItem("Age", ageEntry),
	}
	d := dialog.NewForm("Start recording", "Start", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		p := session.Patient{Name: nameEntry.Text, Age: ageEntry.Text}
		if err := state.startRecording(p); err != nil {
			dialog.ShowError(err, state.window)
			return
		}
		state.recordBtn.SetText("Stop")
		state.recordBtn.SetIcon(theme.MediaStopIcon())
	}, state.window)
	d.Resize(fyne.NewSize(400, 200))
	d.Show()
}

// startRecording creates the history file and subscribes it to the session.
func (state *appState) startRecording(p session.Patient) error {
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.recorder != nil {
		return nil
	}
	start := time.Now()
	rec, err := session.Create(state.cfg.Recording.Directory, p, start, state.cfg.Recording.ECG)
	if err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	state.recorder = rec
	state.session.AddSink(rec)
	state.logger.Info("Recording started",
		zap.String("path", rec.Path()),
		zap.Stringer("session_id", rec.ID()),
	)

	if state.cfg.Recording.Database != "" {
		if err := state.beginStored(rec, start); err != nil {
			// The text history is the primary record; keep going without the store.
			state.logger.Warn("Session store unavailable",
				zap.String("database", state.cfg.Recording.Database),
				zap.Error(err),
			)
		}
	}
	return nil
}

// beginStored mirrors rec into the session database. Called with state.mu held.
func (state *appState) beginStored(rec *session.Recorder, start time.Time) error {
	if state.store == nil {
		db, err := store.Open(state.cfg.Recording.Database)
		if err != nil {
			return err
		}
		state.store = db
	}
	ss, err := state.store.Begin(rec.ID(), rec.Patient(), start, state.cfg.Recording.ECG)
	if err != nil {
		return err
	}
	if err := ss.Event(session.Event{Timestamp: start, Type: session.EventSystem, Detail: session.DetailRecordingStarted}); err != nil {
		return err
	}
	state.stored = ss
	state.session.AddSink(ss)
	return nil
}

// stopRecording unsubscribes and closes the recorder with detail as the last
// row. It returns the closed recorder, nil when not recording.
func (state *appState) stopRecording(detail string) *session.Recorder {
	state.mu.Lock()
	rec := state.recorder
	ss := state.stored
	state.recorder = nil
	state.stored = nil
	state.mu.Unlock()

	if ss != nil {
		state.session.RemoveSink(ss)
		now := time.Now()
		err := errors.Join(
			ss.Event(session.Event{Timestamp: now, Type: session.EventSystem, Detail: detail}),
			ss.Close(now),
		)
		if err != nil {
			state.logger.Error("Failed to close stored session", zap.Stringer("session_id", ss.ID()), zap.Error(err))
		}
	}
	if rec == nil {
		return nil
	}
	state.session.RemoveSink(rec)
	if err := rec.Close(detail); err != nil {
		state.logger.Error("Failed to close recording", zap.String("path", rec.Path()), zap.Error(err))
	}
	state.logger.Info("Recording stopped", zap.String("path", rec.Path()), zap.Int("rows", rec.Rows()))
	return rec
}

func summaryText(rec *session.Recorder, s session.Summary) string {
	text := fmt.Sprintf("Patient: %s (%s)\nFile: %s\nRows: %d",
		rec.Patient().Name, rec.Patient().Age, rec.Path(), rec.Rows())
	if s.Valid == 0 {
		return text + fmt.Sprintf("\nReports: %d, none with a finger.", s.Reports)
	}
	return text + fmt.Sprintf("\nReports: %d (%d valid)\nSpO2: %.1f ± %.1f %% (min %.0f)\nHR: %.1f ± %.1f BPM (%.0f-%.0f)\nHypoxia events: %d",
		s.Reports, s.Valid,
		s.SpO2Mean, s.SpO2Std, s.SpO2Min,
		s.HeartRateMean, s.HeartRateStd, s.HeartRateMin, s.HeartRateMax,
		s.HypoxiaEvents,
	)
}
