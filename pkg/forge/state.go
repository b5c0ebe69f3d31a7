package forge

// NormalizeState maps a raw backend state onto the unified vocabulary.
// Unknown values are treated as open.
func NormalizeState(raw string) State {
	switch raw {
	case "opened", "open":
		return StateOpen
	case "closed":
		return StateClosed
	case "merged":
		return StateMerged
	default:
		return StateOpen
	}
}

// matchesState reports whether an entity in state s passes filter. The
// empty filter means open.
func matchesState(filter, s State) bool {
	switch filter {
	case StateAll:
		return true
	case "":
		return s == StateOpen
	}
	return filter == s
}
