package splitter

// Abbreviations are matched against the letters-and-dots token that precedes
// a '.', lowercased and without the final dot.
var (
	titleAbbreviations = []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st", "rev", "hon",
		"gen", "col", "capt", "lt", "sgt", "gov", "sen", "rep", "pres",
		// French
		"mm", "mme", "mmes", "mlle", "mlles", "pr",
	}

	degreeAbbreviations = []string{
		"ph.d", "m.d", "b.a", "m.a", "b.sc", "m.sc", "d.phil", "ll.b", "ll.m", "m.b.a", "d.d.s",
	}

	businessAbbreviations = []string{
		"inc", "ltd", "co", "corp", "llc", "plc", "bros", "dept", "assn", "intl",
		// French
		"cie", "ste", "sté",
	}

	timeAbbreviations = []string{
		"a.m", "p.m", "jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept",
		"oct", "nov", "dec", "mon", "tue", "tues", "thu", "thur", "thurs", "fri",
		// French
		"janv", "févr", "avr", "juil", "déc", "av",
	}

	latinAbbreviations = []string{
		"e.g", "i.e", "etc", "vs", "viz", "al", "cf", "approx", "ca", "n.b", "p.s",
		// French
		"env", "éd", "ex",
	}

	// numericAbbreviations only suppress a boundary when a digit follows.
	numericAbbreviations = []string{
		"no", "nos", "vol", "vols", "fig", "figs", "p", "pp", "art", "ch", "sec", "eq",
	}
)

// DefaultAbbreviations returns the multilingual abbreviation list
func DefaultAbbreviations() []string {
	var all []string
	for _, group := range [][]string{
		titleAbbreviations,
		degreeAbbreviations,
		businessAbbreviations,
		timeAbbreviations,
		latinAbbreviations,
	} {
		all = append(all, group...)
	}
	return all
}

// DefaultNumericAbbreviations returns abbreviations that precede numbers
func DefaultNumericAbbreviations() []string {
	out := make([]string, len(numericAbbreviations))
	copy(out, numericAbbreviations)
	return out
}
