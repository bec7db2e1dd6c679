package model

// Shared defaults used by the server binary and its packages.
const (
	DefaultCertstreamURL = "wss://certstream.calidog.io/"
	DefaultOutputDir     = "data"
	DefaultFreeCAMarker  = "Let's Encrypt"
	DefaultAlertScore    = 65
)
