package apistyles

// PackAdvice is the typed answer to "should I pack an umbrella?".
type PackAdvice struct {
	Umbrella  bool   `json:"umbrella" jsonschema:"whether an umbrella should be packed"`
	Rationale string `json:"rationale" jsonschema:"one or two sentences explaining the advice"`
}

// RepoSummary is the typed extraction target for a repository description.
type RepoSummary struct {
	Name      string   `json:"name" jsonschema:"repository name"`
	Topics    []string `json:"topics" jsonschema:"short topic tags"`
	RiskLevel string   `json:"risk_level" jsonschema:"one of low, medium or high"`
}
