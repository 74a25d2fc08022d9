package enrich

// scriptThreshold is the minimum count of characters in a script range
// before that script's language wins over the English baseline.
const scriptThreshold = 5

// detectLanguage infers the primary language from script-range character
// counts. Scripts are checked in a fixed order so mixed text resolves
// deterministically; below every threshold the baseline is english. Empty
// text yields nil.
func detectLanguage(text string) *string {
	if text == "" {
		return nil
	}

	var chinese, russian, korean, japanese int
	for _, r := range text {
		switch {
		case r >= 0x4e00 && r <= 0x9fff:
			chinese++
		case r >= 0x0400 && r <= 0x04ff:
			russian++
		case r >= 0xac00 && r <= 0xd7af:
			korean++
		case (r >= 0x3040 && r <= 0x309f) || (r >= 0x30a0 && r <= 0x30ff):
			japanese++
		}
	}

	switch {
	case chinese > scriptThreshold:
		return ptr("chinese")
	case russian > scriptThreshold:
		return ptr("russian")
	case korean > scriptThreshold:
		return ptr("korean")
	case japanese > scriptThreshold:
		return ptr("japanese")
	}
	return ptr("english")
}
