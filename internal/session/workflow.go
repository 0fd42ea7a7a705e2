package session

import (
	"io"
	"time"

	"gosurv/adapters/excel"
	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/errors"
	"gosurv/internal/observability"
	"gosurv/internal/survival"
)

// Workflow runs the user-facing stages (upload, column assignment) against a
// session. The web UI and the JSON API share it so both see the same state.
type Workflow struct {
	store    *Store
	reader   *excel.DataReader
	pipeline *survival.Pipeline
	logger   *internal.Logger
}

// NewWorkflow wires the stages to a store
func NewWorkflow(store *Store, reader *excel.DataReader, pipeline *survival.Pipeline, logger *internal.Logger) *Workflow {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Workflow{
		store:    store,
		reader:   reader,
		pipeline: pipeline,
		logger:   logger.WithComponent("Workflow"),
	}
}

// Store returns the underlying session store
func (w *Workflow) Store() *Store {
	return w.store
}

// Upload parses a spreadsheet into the session. A new table resets the
// assignment and any fitted models. An unreadable file also clears the
// previous table so nothing downstream runs until a valid file arrives.
func (w *Workflow) Upload(id core.SessionID, fileName string, src io.Reader) (State, error) {
	fileType, _ := excel.DetectFileType(fileName)
	table, readErr := w.reader.Read(fileName, src)

	result := "loaded"
	if readErr != nil {
		result = "parse_error"
		observability.RecordError("loader", errors.GetCode(readErr))
	}
	if fileType == "" {
		fileType = "unknown"
	}
	observability.RecordUpload(fileType, result, table.Len())

	state, err := w.store.Update(id, func(s *State) error {
		s.Table = table
		s.FileName = fileName
		s.UploadedAt = time.Now()
		s.Assignment = dataset.Assignment{}
		s.Outcome = nil
		if readErr != nil {
			s.Table = nil
		}
		return nil
	})
	if err != nil {
		return state, err
	}
	if readErr != nil {
		w.logger.Warn("session %s: upload %s rejected: %v", id, fileName, readErr)
		return state, readErr
	}
	w.logger.Info("session %s: loaded %s (%d rows)", id, fileName, table.Len())
	return state, nil
}

// Assign stores a column assignment and re-runs preparation and fitting.
// The outcome is kept on the session whatever its status.
func (w *Workflow) Assign(id core.SessionID, assignment dataset.Assignment) (State, error) {
	return w.store.Update(id, func(s *State) error {
		if !s.HasTable() {
			return errors.WithCode(errors.CodeNotFound, core.ErrNoTable)
		}
		outcome := w.pipeline.Run(s.Table, assignment)
		s.Assignment = outcome.Assignment
		s.Outcome = &outcome
		return nil
	})
}

// Loaded returns the session state, failing with NOT_FOUND when no table
// has been uploaded yet
func (w *Workflow) Loaded(id core.SessionID) (State, error) {
	state, err := w.store.Get(id)
	if err != nil {
		return state, err
	}
	if !state.HasTable() {
		return state, errors.WithCode(errors.CodeNotFound, core.ErrNoTable)
	}
	return state, nil
}
