// Package result defines the structured verdict produced by a verification run.
//
// The JSON field names are the wire contract consumed by callers of the result
// channel and must stay in sync with schema.json and the agent instructions.
package result

// Failure details the step at which a user journey deviated from expectations.
type Failure struct {
	Step       int    `json:"step"`
	Observed   string `json:"observed"`
	Expected   string `json:"expected"`
	Screenshot string `json:"screenshot"`
}

// UserJourneyAnalysis is the verdict for a single user journey.
type UserJourneyAnalysis struct {
	Journey string   `json:"journey"`
	Passing bool     `json:"passing"`
	Steps   []string `json:"steps"`
	Failure *Failure `json:"failure"`
}

// Category is one quality dimension. An empty message means no issue was found.
type Category struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// QualityEvaluation is the holistic rating of the application.
type QualityEvaluation struct {
	Rating     int        `json:"rating"`
	Summary    string     `json:"summary"`
	Categories []Category `json:"categories"`
}

// AgentOutput is the final structured answer of a run.
type AgentOutput struct {
	Analysis          []UserJourneyAnalysis `json:"analysis"`
	QualityEvaluation QualityEvaluation     `json:"qualityEvaluation"`
}

// Passed reports whether every analysed journey passed.
func (o AgentOutput) Passed() bool {
	for _, a := range o.Analysis {
		if !a.Passing {
			return false
		}
	}
	return true
}
