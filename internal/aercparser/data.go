package aercparser

// ParseParam holds operator-tunable knobs for parsing. Currently
// empty: AERCParser's selectors are fixed to one known source's
// markup, so there is nothing to tune yet.
// Kept as a named type so a future second calendar source can add
// fields without changing every call site.
type ParseParam struct{}
