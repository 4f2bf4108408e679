package httpserver

import (
	"encoding/json"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/and161185/timecards/internal/convert"
	"github.com/and161185/timecards/internal/errs"
	"github.com/and161185/timecards/internal/model"
)

var documentStatus = map[model.DocumentRelationship]model.Status{
	model.DocSubmittal:    model.StatusSubmitted,
	model.DocCancellation: model.StatusCancelled,
	model.DocApproval:     model.StatusApproved,
	model.DocRejection:    model.StatusRejected,
}

func timecardID(r *http.Request) model.TimecardIdentity {
	return model.TimecardIdentity(chi.URLParam(r, "id"))
}

func writeDoc(w http.ResponseWriter, code int, ct model.ContentType, v any) {
	w.Header().Set("Content-Type", string(ct))
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) resource(w http.ResponseWriter, r *http.Request) (int, bool) {
	res, ok := ResourceFromCtx(r.Context())
	if !ok {
		writeErr(w, s.log, errs.ErrUnauthorized)
	}
	return res, ok
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	tcs, err := s.timecards.List(r.Context())
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeDoc(w, http.StatusOK, model.ContentTimesheet, convert.ToTimecardViews(tcs))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	tc, err := s.timecards.Create(r.Context(), res)
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	w.Header().Set("Location", tc.Identity.Href())
	writeDoc(w, http.StatusCreated, model.ContentTimesheet, convert.ToTimecardView(tc))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	tc, err := s.timecards.Get(r.Context(), timecardID(r))
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeDoc(w, http.StatusOK, model.ContentTimesheet, convert.ToTimecardView(tc))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.timecards.Remove(r.Context(), timecardID(r)); err != nil {
		writeErr(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	lines, err := s.timecards.Lines(r.Context(), timecardID(r))
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeDoc(w, http.StatusOK, model.ContentTimesheetLine, convert.ToLineViews(lines))
}

func (s *Server) handleLine(w http.ResponseWriter, r *http.Request) {
	l, err := s.timecards.Line(r.Context(), timecardID(r), chi.URLParam(r, "lineId"))
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeDoc(w, http.StatusOK, model.ContentTimesheetLine, convert.ToLineView(l))
}

func (s *Server) handleAddLine(w http.ResponseWriter, r *http.Request) {
	var req convert.LineRequest
	if err := convert.Decode(r.Body, &req, false); err != nil {
		writeErr(w, s.log, err)
		return
	}
	id := timecardID(r)
	l, err := s.timecards.AddLine(r.Context(), id, req.Model())
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	w.Header().Set("Location", id.Href("lines", l.UniqueIdentifier.String()))
	writeDoc(w, http.StatusCreated, model.ContentTimesheetLine, convert.ToLineView(l))
}

func (s *Server) handleReplaceLine(w http.ResponseWriter, r *http.Request) {
	var req convert.LineRequest
	if err := convert.Decode(r.Body, &req, false); err != nil {
		writeErr(w, s.log, err)
		return
	}
	l, err := s.timecards.ReplaceLine(r.Context(), timecardID(r), chi.URLParam(r, "lineId"), req.Model())
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeDoc(w, http.StatusOK, model.ContentTimesheetLine, convert.ToLineView(l))
}

func (s *Server) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	var req convert.LinePatch
	if err := convert.Decode(r.Body, &req, false); err != nil {
		writeErr(w, s.log, err)
		return
	}
	l, err := s.timecards.UpdateLine(r.Context(), timecardID(r), chi.URLParam(r, "lineId"), req.Model())
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeDoc(w, http.StatusOK, model.ContentTimesheetLine, convert.ToLineView(l))
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	trs, err := s.timecards.Transitions(r.Context(), timecardID(r))
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	views, err := convert.ToTransitionViews(trs)
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeDoc(w, http.StatusOK, model.ContentTransitions, views)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	rel := model.DocumentRelationship(path.Base(r.URL.Path))
	status, ok := documentStatus[rel]
	if !ok {
		writeErr(w, s.log, errs.ErrNotFound)
		return
	}
	tr, err := s.timecards.Document(r.Context(), timecardID(r), status)
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	s.writeTransition(w, http.StatusOK, tr)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(res int, _ string) (model.Transition, error) {
		return s.timecards.Submit(r.Context(), timecardID(r), res)
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(res int, reason string) (model.Transition, error) {
		return s.timecards.Cancel(r.Context(), timecardID(r), res, reason)
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(res int, _ string) (model.Transition, error) {
		return s.timecards.Approve(r.Context(), timecardID(r), res)
	})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(res int, reason string) (model.Transition, error) {
		return s.timecards.Reject(r.Context(), timecardID(r), res, reason)
	})
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(res int, reason string) (model.Transition, error) {
		return s.timecards.Return(r.Context(), timecardID(r), res, reason)
	})
}

// transition decodes the optional reason body, runs apply as the caller and answers with the new transition.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, apply func(resource int, reason string) (model.Transition, error)) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	var req convert.TransitionRequest
	if err := convert.Decode(r.Body, &req, true); err != nil {
		writeErr(w, s.log, err)
		return
	}
	tr, err := apply(res, req.Reason)
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	s.writeTransition(w, http.StatusCreated, tr)
}

func (s *Server) writeTransition(w http.ResponseWriter, code int, tr model.Transition) {
	v, err := convert.ToTransitionView(tr)
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeDoc(w, code, model.ContentTransitions, v)
}
