package pipeline

import (
	"errors"
	"fmt"

	"github.com/itsmostafa/pagetree/internal/pageindex"
	"github.com/itsmostafa/pagetree/internal/session"
)

// Failure is returned when a session cannot complete. It carries the stage
// that did not complete, recovery suggestions and the checkpoint written
// for diagnosis.
type Failure struct {
	SessionID      string
	Stage          session.Stage
	Err            error
	Suggestions    []string
	CheckpointPath string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("session %s failed at %s: %v", f.SessionID, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

var (
	inputSuggestions = []string{
		"Verify PDF file exists and is readable",
		"Try a different page source backend",
		"Check if PDF is password protected or corrupted",
	}
	tocSuggestions = []string{
		"Try processing without TOC detection",
		"Manually specify TOC pages if known",
		"Increase toc_check_page_num if TOC appears later in document",
	}
	structureSuggestions = []string{
		"Reduce max_token_num_each_node for smaller chunks",
		"Try different extraction strategy",
		"Check if document has clear section headers",
	}
	verificationSuggestions = []string{
		"Lower accuracy_threshold in configuration",
		"Skip verification step if structure looks reasonable",
		"Manual review of extracted structure recommended",
	}
)

// Suggestions returns recovery hints for an error raised while working
// towards stage.
func Suggestions(stage session.Stage, err error) []string {
	var inputErr *pageindex.InputError
	switch {
	case errors.As(err, &inputErr) || errors.Is(err, pageindex.ErrNoPages):
		return inputSuggestions
	case errors.Is(err, pageindex.ErrNoItems):
		return structureSuggestions
	}

	switch stage {
	case session.StageInit, session.StageParsed:
		return inputSuggestions
	case session.StageTOCChecked:
		return tocSuggestions
	case session.StageVerified:
		return verificationSuggestions
	default:
		return structureSuggestions
	}
}
