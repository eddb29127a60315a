package generate

import (
	"pgknex/internal/schema"
)

// DependencyOrder returns the tables sorted so that every table comes after
// the tables its foreign keys reference. Ties keep declaration order, so the
// output is deterministic. Reference cycles are broken by picking the table
// with the fewest unsatisfied references, earliest-declared first.
func DependencyOrder(m *schema.Model) []*schema.Table {
	deps := map[string][]string{}
	for _, fk := range m.ForeignKeys {
		if fk.RefTable != fk.Table {
			deps[fk.Table] = append(deps[fk.Table], fk.RefTable)
		}
	}

	var sorted []*schema.Table
	done := map[string]bool{}

	for len(sorted) < len(m.Tables) {
		added := false
		for _, t := range m.Tables {
			if done[t.Name] {
				continue
			}
			ready := true
			for _, dep := range deps[t.Name] {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				sorted = append(sorted, t)
				done[t.Name] = true
				added = true
			}
		}
		if added {
			continue
		}

		// Cycle: take the remaining table with the fewest unsatisfied
		// references; declaration order breaks ties.
		var best *schema.Table
		bestMissing := -1
		for _, t := range m.Tables {
			if done[t.Name] {
				continue
			}
			missing := 0
			for _, dep := range deps[t.Name] {
				if !done[dep] {
					missing++
				}
			}
			if best == nil || missing < bestMissing {
				best, bestMissing = t, missing
			}
		}
		if best == nil {
			break
		}
		sorted = append(sorted, best)
		done[best.Name] = true
	}
	return sorted
}
