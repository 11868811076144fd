package pages

// optionLabel names a flag option; the empty value leaves the flag unset.
func optionLabel(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}
