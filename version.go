package espalier

// Version is the library release identifier. Release builds override it with
// -ldflags "-X github.com/aretw0/espalier.Version=v1.2.3".
var Version = "0.6.0-dev"
