package channel

const (
	// ResponseStartMarker marks the beginning of a reply in structured output mode.
	ResponseStartMarker = "<<SWITCHBOARD_RESPONSE>>"
	// ResponseEndMarker marks the end of a reply in structured output mode.
	ResponseEndMarker = "<<END_RESPONSE>>"
	// EnvCLIResponseMarkers is the environment variable that enables response markers.
	EnvCLIResponseMarkers = "SWITCHBOARD_CLI_RESPONSE_MARKERS"
)
