package conversation

// EntityType names a kind of value the extractor can pull from a message.
type EntityType string

const (
	EntityCondition  EntityType = "condition"
	EntityLocation   EntityType = "location"
	EntityAge        EntityType = "age"
	EntityBoolean    EntityType = "boolean"
	EntityNumber     EntityType = "number"
	EntityMedication EntityType = "medication"
	EntityTrialID    EntityType = "trial_id"
)

// Entity provenance values, strongest first.
const (
	SourceDirect        = "direct"        // intent-scoped pattern match
	SourceContextual    = "contextual"    // implied by the current state
	SourceOpportunistic = "opportunistic" // best-effort match outside the intent's scope
	SourceInferred      = "inferred"      // promoted from a contextual clue
	SourceContext       = "context"       // filled from the session's focus fields
)

// Entity is one typed value recognized in a message.
type Entity struct {
	Value      string  `json:"value"`
	Normalized string  `json:"normalized"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// EntityMap holds at most one entity per type for a single turn.
type EntityMap map[EntityType]Entity
