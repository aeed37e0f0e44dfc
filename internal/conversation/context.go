package conversation

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// TrialSummary is the slice of a trial record the conversation needs to
// show and refer back to. Search ranking lives with the trials collaborator.
type TrialSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Condition string `json:"condition"`
	Location  string `json:"location"`
	Phase     string `json:"phase,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// StringSet is an insertion-order-irrelevant set serialized as a sorted list.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given values.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v; empty strings are ignored.
func (s StringSet) Add(v string) {
	if v == "" {
		return
	}
	s[v] = struct{}{}
}

// Has reports membership.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Union folds other into s.
func (s StringSet) Union(other StringSet) {
	for v := range other {
		s[v] = struct{}{}
	}
}

// Values returns the members sorted for deterministic output.
func (s StringSet) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON serializes the set as a sorted JSON array.
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON accepts a JSON array of strings.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	set := make(StringSet, len(values))
	for _, v := range values {
		set.Add(v)
	}
	*s = set
	return nil
}

// HistoryEntry is one completed turn as remembered inside the context.
type HistoryEntry struct {
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	Intent      string    `json:"intent,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Context is the per-session unit of conversational memory. SessionID is
// immutable once created; State must always be a member of the state
// enumeration. The record is never hard-deleted: it expires by age and is
// soft-deactivated on explicit reset.
type Context struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	State State `json:"conversation_state"`

	FocusCondition string `json:"focus_condition,omitempty"`
	FocusLocation  string `json:"focus_location,omitempty"`

	TrialID   string `json:"trial_id,omitempty"`
	TrialName string `json:"trial_name,omitempty"`

	PrescreeningData   map[string]any `json:"prescreening_data,omitempty"`
	CollectedData      map[string]any `json:"collected_data,omitempty"`
	RemainingQuestions []string       `json:"remaining_questions,omitempty"`
	CurrentQuestionKey string         `json:"current_question_key,omitempty"`

	LastShownTrials     []TrialSummary `json:"last_shown_trials,omitempty"`
	JustShowedTrialInfo bool           `json:"just_showed_trial_info,omitempty"`

	MentionedConditions StringSet `json:"mentioned_conditions,omitempty"`
	MentionedLocations  StringSet `json:"mentioned_locations,omitempty"`

	History []HistoryEntry `json:"conversation_history,omitempty"`

	// StateData is the one bounded extension map for cross-handler
	// signalling; typed fields are preferred for everything stable.
	StateData map[string]any `json:"state_data,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	// Appointment sub-flow state, preserved through merges so the
	// scheduling family can attach without a migration.
	BookingData     map[string]any   `json:"booking_data,omitempty"`
	SelectedSlot    map[string]any   `json:"selected_slot,omitempty"`
	BookingSiteInfo map[string]any   `json:"booking_site_info,omitempty"`
	BookingTrialID  string           `json:"booking_trial_id,omitempty"`
	PresentedSlots  []map[string]any `json:"presented_slots,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewContext returns a fresh idle context for an unseen session.
func NewContext(sessionID string) *Context {
	now := time.Now().UTC()
	return &Context{
		SessionID:           sessionID,
		UserID:              "anonymous",
		State:               StateIdle,
		PrescreeningData:    map[string]any{},
		CollectedData:       map[string]any{},
		StateData:           map[string]any{},
		Metadata:            map[string]any{},
		MentionedConditions: NewStringSet(),
		MentionedLocations:  NewStringSet(),
		CreatedAt:           now,
		LastUpdated:         now,
	}
}

// ensureMaps backfills nil maps after deserialization so callers can write
// without nil checks.
func (c *Context) ensureMaps() {
	if c.PrescreeningData == nil {
		c.PrescreeningData = map[string]any{}
	}
	if c.CollectedData == nil {
		c.CollectedData = map[string]any{}
	}
	if c.StateData == nil {
		c.StateData = map[string]any{}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	if c.MentionedConditions == nil {
		c.MentionedConditions = NewStringSet()
	}
	if c.MentionedLocations == nil {
		c.MentionedLocations = NewStringSet()
	}
}

// Marshal serializes the context for the persisted jsonb blob.
func (c *Context) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalContext decodes a persisted blob back into a context, repairing
// nil maps and out-of-enumeration states.
func UnmarshalContext(data []byte) (*Context, error) {
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.State = ParseState(string(c.State))
	c.ensureMaps()
	if c.UserID == "" {
		c.UserID = "anonymous"
	}
	return &c, nil
}

// ApplyUpdates merges an untyped update map into the context using the
// protocol's merge semantics: sets union, trial lists append-dedup, map
// fields merge key-wise, scalars overwrite. Unknown keys land in StateData
// so newer handlers stay compatible with older pipelines.
func (c *Context) ApplyUpdates(updates map[string]any) {
	c.ensureMaps()
	for key, raw := range updates {
		switch key {
		case "conversation_state":
			if s, ok := raw.(string); ok {
				c.State = ParseState(s)
			} else if s, ok := raw.(State); ok && s.IsValid() {
				c.State = s
			}
		case "focus_condition":
			if v, ok := raw.(string); ok {
				// Focus fields are stored lowercase so cache keys, dedup sets,
				// and searches agree no matter which layer wrote them.
				v = strings.ToLower(strings.TrimSpace(v))
				c.FocusCondition = v
				c.MentionedConditions.Add(v)
			}
		case "focus_location":
			if v, ok := raw.(string); ok {
				v = strings.ToLower(strings.TrimSpace(v))
				c.FocusLocation = v
				c.MentionedLocations.Add(v)
			}
		case "trial_id":
			if v, ok := raw.(string); ok {
				c.TrialID = v
			}
		case "trial_name":
			if v, ok := raw.(string); ok {
				c.TrialName = v
			}
		case "current_question_key":
			if v, ok := raw.(string); ok {
				c.CurrentQuestionKey = v
			}
		case "booking_trial_id":
			if v, ok := raw.(string); ok {
				c.BookingTrialID = v
			}
		case "just_showed_trial_info":
			if v, ok := raw.(bool); ok {
				c.JustShowedTrialInfo = v
			}
		case "remaining_questions":
			c.RemainingQuestions = toStringSlice(raw)
		case "mentioned_conditions":
			for _, v := range toStringSlice(raw) {
				c.MentionedConditions.Add(strings.ToLower(v))
			}
		case "mentioned_locations":
			for _, v := range toStringSlice(raw) {
				c.MentionedLocations.Add(strings.ToLower(v))
			}
		case "last_shown_trials":
			if ts, ok := raw.([]TrialSummary); ok {
				c.AppendShownTrials(ts)
			}
		case "prescreening_data":
			mergeMap(c.PrescreeningData, raw)
		case "collected_data":
			mergeMap(c.CollectedData, raw)
		case "state_data":
			mergeMap(c.StateData, raw)
		case "metadata":
			mergeMap(c.Metadata, raw)
		case "booking_data":
			if c.BookingData == nil {
				c.BookingData = map[string]any{}
			}
			mergeMap(c.BookingData, raw)
		case "selected_slot":
			if m, ok := raw.(map[string]any); ok {
				c.SelectedSlot = m
			}
		default:
			c.StateData[key] = raw
		}
	}
	c.LastUpdated = time.Now().UTC()
}

// AppendShownTrials appends trials to the shown list, skipping IDs already
// present so repeated searches do not duplicate entries.
func (c *Context) AppendShownTrials(trials []TrialSummary) {
	seen := make(map[string]struct{}, len(c.LastShownTrials))
	for _, t := range c.LastShownTrials {
		seen[t.ID] = struct{}{}
	}
	for _, t := range trials {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		c.LastShownTrials = append(c.LastShownTrials, t)
		seen[t.ID] = struct{}{}
	}
}

// AppendHistory records a completed turn.
func (c *Context) AppendHistory(userMessage, botResponse string, intent IntentType) {
	c.History = append(c.History, HistoryEntry{
		UserMessage: userMessage,
		BotResponse: botResponse,
		Intent:      string(intent),
		Timestamp:   time.Now().UTC(),
	})
}

// LastBotMessage returns the most recent assistant response, or "".
func (c *Context) LastBotMessage() string {
	if len(c.History) == 0 {
		return ""
	}
	return c.History[len(c.History)-1].BotResponse
}

// StateDataBool reads a boolean flag out of the extension map.
func (c *Context) StateDataBool(key string) bool {
	v, ok := c.StateData[key].(bool)
	return ok && v
}

// StateDataString reads a string out of the extension map.
func (c *Context) StateDataString(key string) string {
	v, _ := c.StateData[key].(string)
	return v
}

func mergeMap(dst map[string]any, raw any) {
	src, ok := raw.(map[string]any)
	if !ok {
		return
	}
	for k, v := range src {
		dst[k] = v
	}
}

func toStringSlice(raw any) []string {
	switch vs := raw.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, v := range vs {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
