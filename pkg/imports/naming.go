package imports

import (
	"regexp"
	"slices"
	"strconv"
)

// NextEntityName returns base followed by one more than the largest
// numeric suffix already used with base in existing. An unsuffixed base
// counts as zero.
func NextEntityName(base string, existing []string) string {
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(base) + `(\d*)$`)

	highest := 0
	for _, name := range existing {
		m := pattern.FindStringSubmatch(name)
		if m == nil || m[1] == "" {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}

	return base + strconv.Itoa(highest+1)
}

// UniqueName returns name if unused, otherwise the next free name derived
// from it. Copies derive from name + "Copy".
func UniqueName(name string, existing []string, isCopy bool) string {
	if !slices.Contains(existing, name) {
		return name
	}
	if isCopy {
		name += "Copy"
	}
	return NextEntityName(name, existing)
}

// PlanContextRenames returns the renames that give every incoming context
// name a name unused by existing and by earlier incoming names. Renames
// are listed in incoming order.
func PlanContextRenames(existing, incoming []string) []ContextRename {
	used := slices.Clone(existing)

	var renames []ContextRename
	for _, name := range incoming {
		next := UniqueName(name, used, false)
		if next != name {
			renames = append(renames, ContextRename{OldName: name, NewName: next})
		}
		used = append(used, next)
	}
	return renames
}
