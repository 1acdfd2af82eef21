// Package progress implements the per-worktree workflow progress ledger.
//
// The ledger is a single JSON document, workflow.json, inside the worktree's
// state directory. Readers never lock and always observe either the previous
// or the next complete document because writes go through a temp file and an
// atomic rename. Updates additionally hold an advisory lock on workflow.lock
// for the whole read-modify-write so concurrent sessions do not lose each
// other's changes.
package progress

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Keys of the on-disk document.
const (
	keyWorktreeID     = "worktree_id"
	keyCurrentStep    = "current_step"
	keyStepsCompleted = "steps_completed"
	keyArtifacts      = "artifacts"
	keyLastUpdated    = "last_updated"
	keyFeatureBranch  = "feature_branch"
	keySessionID      = "session_id"
)

// ReservedKeys are the document keys owned by the ledger. Extension fields
// may not use them.
var ReservedKeys = []string{
	keyWorktreeID,
	keyCurrentStep,
	keyStepsCompleted,
	keyArtifacts,
	keyLastUpdated,
	keyFeatureBranch,
	keySessionID,
}

// Progress is the workflow progress of one worktree.
type Progress struct {
	WorktreeID     string
	CurrentStep    int
	StepsCompleted []int
	Artifacts      map[string]string
	LastUpdated    *time.Time
	FeatureBranch  string
	SessionID      string

	// Extra holds caller-supplied extension fields, preserved verbatim.
	Extra map[string]json.RawMessage

	ignored []string
}

// Default returns the document of a worktree with no recorded progress.
func Default(worktreeID string) *Progress {
	return &Progress{
		WorktreeID:     worktreeID,
		StepsCompleted: []int{},
		Artifacts:      map[string]string{},
		Extra:          map[string]json.RawMessage{},
	}
}

// IsStepCompleted reports whether step is in StepsCompleted.
func (p *Progress) IsStepCompleted(step int) bool {
	_, found := slices.BinarySearch(p.StepsCompleted, step)
	return found
}

// completeStep sets the current step and records it, keeping the list sorted
// and free of duplicates.
func (p *Progress) completeStep(step int) {
	p.CurrentStep = step
	idx, found := slices.BinarySearch(p.StepsCompleted, step)
	if !found {
		p.StepsCompleted = slices.Insert(p.StepsCompleted, idx, step)
	}
}

// artifactKey returns the key an artifact is stored under: step_<n> for a
// step, otherwise the first free artifact_<k> starting at the artifact count.
func (p *Progress) artifactKey(step *int) string {
	if step != nil {
		return fmt.Sprintf("step_%d", *step)
	}
	for k := len(p.Artifacts); ; k++ {
		key := fmt.Sprintf("artifact_%d", k)
		if _, taken := p.Artifacts[key]; !taken {
			return key
		}
	}
}

// Field decodes an extension field into v.
func (p *Progress) Field(key string, v any) (bool, error) {
	raw, ok := p.Extra[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// MarshalJSON writes the snake_case document, merging extension fields at
// the top level. last_updated is null until the first update.
func (p *Progress) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(p.Extra)+len(ReservedKeys))
	for k, v := range p.Extra {
		doc[k] = v
	}

	steps := p.StepsCompleted
	if steps == nil {
		steps = []int{}
	}
	artifacts := p.Artifacts
	if artifacts == nil {
		artifacts = map[string]string{}
	}

	doc[keyWorktreeID] = p.WorktreeID
	doc[keyCurrentStep] = p.CurrentStep
	doc[keyStepsCompleted] = steps
	doc[keyArtifacts] = artifacts
	if p.LastUpdated != nil {
		doc[keyLastUpdated] = p.LastUpdated.UTC().Format(time.RFC3339Nano)
	} else {
		doc[keyLastUpdated] = nil
	}
	if p.FeatureBranch != "" {
		doc[keyFeatureBranch] = p.FeatureBranch
	}
	if p.SessionID != "" {
		doc[keySessionID] = p.SessionID
	}

	return json.Marshal(doc)
}

// timestampLayouts are the accepted shapes of last_updated. Values without
// an offset are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// UnmarshalJSON parses a document. Only malformed JSON or a top level that is
// not an object is an error. A ledger key holding a value of the wrong shape
// falls back to its default and is reported by IgnoredFields.
func (p *Progress) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("progress document is null")
	}

	out := Default("")
	decode := func(key string, v any) bool {
		raw, ok := doc[key]
		if !ok || string(raw) == "null" {
			return false
		}
		if err := json.Unmarshal(raw, v); err != nil {
			out.ignored = append(out.ignored, key)
			return false
		}
		return true
	}

	decode(keyWorktreeID, &out.WorktreeID)
	decode(keyCurrentStep, &out.CurrentStep)
	decode(keyFeatureBranch, &out.FeatureBranch)
	decode(keySessionID, &out.SessionID)

	var steps []json.RawMessage
	if decode(keyStepsCompleted, &steps) {
		partial := false
		for _, raw := range steps {
			var step int
			if err := json.Unmarshal(raw, &step); err != nil {
				partial = true
				continue
			}
			out.StepsCompleted = append(out.StepsCompleted, step)
		}
		if partial {
			out.ignored = append(out.ignored, keyStepsCompleted)
		}
	}

	var artifacts map[string]json.RawMessage
	if decode(keyArtifacts, &artifacts) {
		partial := false
		for k, raw := range artifacts {
			var path string
			if err := json.Unmarshal(raw, &path); err != nil {
				partial = true
				continue
			}
			out.Artifacts[k] = path
		}
		if partial {
			out.ignored = append(out.ignored, keyArtifacts)
		}
	}

	var lastUpdated string
	if decode(keyLastUpdated, &lastUpdated) && lastUpdated != "" {
		if t, ok := parseTimestamp(lastUpdated); ok {
			out.LastUpdated = &t
		} else {
			out.ignored = append(out.ignored, keyLastUpdated)
		}
	}

	slices.Sort(out.StepsCompleted)
	out.StepsCompleted = slices.Compact(out.StepsCompleted)

	for k, v := range doc {
		if !slices.Contains(ReservedKeys, k) {
			out.Extra[k] = v
		}
	}

	*p = *out
	return nil
}

// IgnoredFields lists the ledger keys whose stored values could not be used
// when the document was parsed.
func (p *Progress) IgnoredFields() []string {
	return slices.Clone(p.ignored)
}

// Clone returns a deep copy.
func (p *Progress) Clone() *Progress {
	c := *p
	c.StepsCompleted = slices.Clone(p.StepsCompleted)
	c.Artifacts = maps.Clone(p.Artifacts)
	c.Extra = maps.Clone(p.Extra)
	c.ignored = slices.Clone(p.ignored)
	if p.LastUpdated != nil {
		t := *p.LastUpdated
		c.LastUpdated = &t
	}
	return &c
}
