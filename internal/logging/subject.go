package logging

// FormatSubject builds the download/stage subject string used in console output.
func FormatSubject(recordID, stage string) string {
	return composeSubject(recordID, stage)
}
