package webapi

// handlers.go - Route handlers and the response envelope

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tephra-labs/tephra/internal/catalog"
	"github.com/tephra-labs/tephra/internal/graph"
	"github.com/tephra-labs/tephra/internal/workspace"
	"github.com/tephra-labs/tephra/pkg/dataset"
)

// envelope frames every response. Status is "ok" with content or "error"
// with the error body, never both.
type envelope struct {
	Status  string     `json:"status"`
	Content any        `json:"content,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// requestError reports a malformed request, as opposed to an operation that
// was understood and failed.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func (s *Server) writeOK(w http.ResponseWriter, content any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope{Status: "ok", Content: content}); err != nil {
		s.logger.Debug("response write failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	env := envelope{
		Status: "error",
		Error:  &errorBody{Type: errType(err), Message: err.Error()},
	}
	if encErr := json.NewEncoder(w).Encode(env); encErr != nil {
		s.logger.Debug("response write failed", "error", encErr)
	}
}

// errType names the error class for remote callers. Evaluation failures are
// checked first so a wrapped cause does not reclassify them.
func errType(err error) string {
	var ee *workspace.EvalError
	if errors.As(err, &ee) {
		return "evaluation"
	}
	var ge *graph.Error
	if errors.As(err, &ge) {
		return "graph:" + string(ge.Kind)
	}
	var be *graph.BindingSyntaxError
	if errors.As(err, &be) {
		return "binding"
	}
	var se *workspace.StateError
	if errors.As(err, &se) {
		return "workspace:" + string(se.Kind)
	}
	var pe *workspace.PersistError
	if errors.As(err, &pe) {
		return "persistence"
	}
	var nf *catalog.NotFoundError
	if errors.As(err, &nf) {
		return "catalog:not_found"
	}
	var re *requestError
	if errors.As(err, &re) {
		return "request"
	}
	return "internal"
}

// urlParam returns a path parameter with percent-escapes decoded. Clients
// escape base directories so absolute paths travel as one segment.
func urlParam(r *http.Request, name string) (string, error) {
	return url.PathUnescape(chi.URLParam(r, name))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeOK(w, map[string]any{
		"name":       "tephra",
		"version":    s.version,
		"workspaces": s.manager.List(),
	})
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base_dir")
	if base == "" {
		s.writeError(w, &requestError{msg: "missing base_dir query parameter"})
		return
	}
	ws, err := s.manager.Init(base, r.URL.Query().Get("description"), false)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeDocument(w, ws)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ws, err := s.openParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeDocument(w, ws)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	base, err := urlParam(r, "base")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.manager.Delete(base); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, nil)
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	base, err := urlParam(r, "base")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.manager.Clean(base); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, nil)
}

func (s *Server) handleSetResource(w http.ResponseWriter, r *http.Request) {
	res, err := urlParam(r, "res")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeError(w, &requestError{msg: "parsing form: " + err.Error()})
		return
	}
	opName := r.PostFormValue("op_name")
	if opName == "" {
		s.writeError(w, &requestError{msg: "missing op_name form field"})
		return
	}
	var tokens []string
	if raw := r.PostFormValue("op_args"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
			s.writeError(w, &requestError{msg: "op_args must be a JSON list of strings: " + err.Error()})
			return
		}
	}

	ws, err := s.openParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.setResource(r.Context(), ws, res, opName, tokens); err != nil {
		s.writeError(w, err)
		return
	}
	if err := ws.Save(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, nil)
}

// setResource mirrors the CLI verbs: the reserved name "source" opens a
// catalog dataset, anything else binds a step.
func (s *Server) setResource(ctx context.Context, ws *workspace.Workspace, res, opName string, tokens []string) error {
	if opName == "source" {
		ref, err := sourceRef(tokens)
		if err != nil {
			return err
		}
		prov, handle, err := s.catalog.Resolve(ctx, ref)
		if err != nil {
			return err
		}
		return ws.AddSource(res, handle, prov)
	}
	bindings, err := graph.ParseBindings(s.ops, opName, tokens)
	if err != nil {
		return err
	}
	return ws.SetStep(res, opName, bindings)
}

func sourceRef(tokens []string) (string, error) {
	if len(tokens) != 1 {
		return "", &requestError{msg: "source takes exactly one ref argument"}
	}
	ref := tokens[0]
	if v, ok := strings.CutPrefix(ref, "ref="); ok {
		ref = v
	}
	if ref == "" {
		return "", &requestError{msg: "source ref is empty"}
	}
	return ref, nil
}

func (s *Server) handleWriteResource(w http.ResponseWriter, r *http.Request) {
	res, err := urlParam(r, "res")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeError(w, &requestError{msg: "parsing form: " + err.Error()})
		return
	}
	filePath := r.PostFormValue("file_path")
	if filePath == "" {
		s.writeError(w, &requestError{msg: "missing file_path form field"})
		return
	}

	ws, err := s.openParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	v, err := ws.Evaluate(r.Context(), res)
	if err != nil {
		s.writeError(w, err)
		return
	}
	format, err := dataset.WriteFile(filePath, r.PostFormValue("format_name"), v)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("resource written", "resource", res, "path", filePath, "format", format)
	s.writeOK(w, nil)
}

// openParam returns the workspace named by the base path parameter, opening
// it from disk if this process does not have it open yet.
func (s *Server) openParam(r *http.Request) (*workspace.Workspace, error) {
	base, err := urlParam(r, "base")
	if err != nil {
		return nil, err
	}
	if ws, err := s.manager.Get(base); err == nil {
		return ws, nil
	}
	return s.manager.Open(base)
}

func (s *Server) writeDocument(w http.ResponseWriter, ws *workspace.Workspace) {
	doc, err := ws.Document()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeOK(w, json.RawMessage(doc))
}
