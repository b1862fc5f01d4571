package cliapp

// renderOperatorMessage formats the concise-mode what/why/do triplet shown
// instead of the full check/doctor detail list, so an operator staring at a
// failed run gets an action, not a wall of fields.
func renderOperatorMessage(whatHappened, whyLikely, doThisNow string) []string {
	return []string{
		"  what_happened: " + whatHappened,
		"  why_likely: " + whyLikely,
		"  do_this_now: " + doThisNow,
	}
}
