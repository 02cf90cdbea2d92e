package buildgraph

import "fmt"

// Plan returns the targets that turn a file of the given format into want,
// in execution order. It fails with ErrUnsatisfiableGraph if no chain of
// registered targets reaches want.
func (r *Registry) Plan(format FormatID, want ArtifactTypeID) ([]TargetID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formats[format]
	if !ok {
		return nil, fmt.Errorf("unknown format '%s'", format)
	}
	if want == f.Entry {
		return nil, nil
	}

	available := map[ArtifactTypeID]bool{f.Entry: true}
	producedBy := make(map[ArtifactTypeID]TargetID)
	fired := make(map[TargetID]bool)
	var order []TargetID

	for changed := true; changed && !available[want]; {
		changed = false
		for _, id := range r.targetOrder {
			t := r.targets[id]
			if fired[id] || !allAvailable(t.Inputs, available) {
				continue
			}
			fired[id] = true
			added := false
			for _, o := range t.Outputs {
				if !available[o] {
					available[o] = true
					producedBy[o] = id
					added = true
				}
			}
			if added {
				order = append(order, id)
				changed = true
			}
		}
	}
	if !available[want] {
		return nil, fmt.Errorf("%w: no targets produce '%s' from format '%s'", ErrUnsatisfiableGraph, want, format)
	}

	// Keep only the targets want actually depends on.
	needed := make(map[TargetID]bool)
	stack := []ArtifactTypeID{want}
	for len(stack) > 0 {
		a := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if a == f.Entry {
			continue
		}
		id := producedBy[a]
		if needed[id] {
			continue
		}
		needed[id] = true
		stack = append(stack, r.targets[id].Inputs...)
	}

	plan := make([]TargetID, 0, len(needed))
	for _, id := range order {
		if needed[id] {
			plan = append(plan, id)
		}
	}
	return plan, nil
}

// PlanGoals merges the plans for several goals, keeping the first position
// of each target. With no goals, the format's own Goals are used.
func (r *Registry) PlanGoals(format FormatID, goals ...ArtifactTypeID) ([]TargetID, error) {
	if len(goals) == 0 {
		f, ok := r.Format(format)
		if !ok {
			return nil, fmt.Errorf("unknown format '%s'", format)
		}
		goals = f.Goals
	}
	seen := make(map[TargetID]bool)
	var out []TargetID
	for _, g := range goals {
		plan, err := r.Plan(format, g)
		if err != nil {
			return nil, err
		}
		for _, id := range plan {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}
