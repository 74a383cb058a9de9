package commands

import (
	"errors"
	"io/fs"

	"github.com/tephra-labs/tephra/internal/catalog"
	"github.com/tephra-labs/tephra/internal/graph"
	"github.com/tephra-labs/tephra/internal/workspace"
)

// Process exit codes. Scripts branch on these, so the mapping is part of the
// CLI contract.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitIO         = 4
	ExitEval       = 5
)

// ExitCode maps an error to the process exit code. Evaluation failures win
// over the errors they wrap, so a missing source dataset discovered
// mid-evaluation still exits 5.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var ee *workspace.EvalError
	if errors.As(err, &ee) {
		return ExitEval
	}

	var ge *graph.Error
	if errors.As(err, &ge) {
		if ge.Kind == graph.KindUnknownResource {
			return ExitNotFound
		}
		return ExitValidation
	}

	var be *graph.BindingSyntaxError
	if errors.As(err, &be) {
		return ExitValidation
	}

	if workspace.IsState(err, workspace.KindNotFound) {
		return ExitNotFound
	}

	var nfe *catalog.NotFoundError
	if errors.As(err, &nfe) {
		return ExitNotFound
	}

	var pe *workspace.PersistError
	if errors.As(err, &pe) {
		return ExitIO
	}

	var fse *fs.PathError
	if errors.As(err, &fse) {
		return ExitIO
	}

	return ExitError
}
