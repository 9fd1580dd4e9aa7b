package agent

import (
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/switchboard/internal/classify"
	"github.com/linnemanlabs/switchboard/internal/extract"
	"github.com/linnemanlabs/switchboard/internal/priority"
	"github.com/linnemanlabs/switchboard/internal/refdata"
	"github.com/linnemanlabs/switchboard/internal/routing"
	"github.com/linnemanlabs/switchboard/internal/tools"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

// Mode selects which strategies decide tickets.
type Mode string

const (
	// ModeDeterministic runs the keyword, regex and table stages only.
	ModeDeterministic Mode = "deterministic"
	// ModeModelStages asks the model to classify, extract and route; scoring
	// and lookups stay deterministic.
	ModeModelStages Mode = "model-stages"
	// ModeModelNarrative lets the model drive the pipeline tools end to end.
	ModeModelNarrative Mode = "model-narrative"
)

// Modes lists the supported modes.
func Modes() []Mode {
	return []Mode{ModeDeterministic, ModeModelStages, ModeModelNarrative}
}

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// ModelBacked reports whether m calls the model provider.
func (m Mode) ModelBacked() bool {
	return m == ModeModelStages || m == ModeModelNarrative
}

// Strategies assembles the engine strategies for mode. p is required for
// the model-backed modes and ignored otherwise.
func Strategies(mode Mode, dir *refdata.Directory, p triage.Provider, logger log.Logger, hooks triage.EngineHooks) (triage.Strategies, error) {
	s := triage.Strategies{
		Classifier: classify.Keyword{},
		Extractor:  extract.Regex{},
		Scorer:     priority.Weighted{},
		Router:     routing.Table{},
		Directory:  dir,
	}

	switch mode {
	case ModeDeterministic:
		return s, nil
	case ModeModelStages, ModeModelNarrative:
		if p == nil {
			return triage.Strategies{}, fmt.Errorf("mode %s requires a model provider", mode)
		}
	default:
		return triage.Strategies{}, fmt.Errorf("unknown mode %q", mode)
	}

	if mode == ModeModelNarrative {
		s.Narrator = NewNarrator(p, tools.NewPipelineTools(dir), logger, hooks)
		return s, nil
	}
	s.Classifier = NewClassifier(p, hooks)
	s.Extractor = NewExtractor(p, hooks)
	s.Router = NewRouter(p, hooks)
	return s, nil
}
