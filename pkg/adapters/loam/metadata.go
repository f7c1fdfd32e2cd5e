package loam

// StateMetadata is the frontmatter of one state document in a definition
// repository. It uses "mapstructure" tags to match the YAML keys the typed
// repository decodes.
type StateMetadata struct {
	// Initial marks this document's state as the machine's initial state.
	// Exactly one document per repository may set it.
	Initial bool `json:"initial" mapstructure:"initial"`

	Superstate string `json:"superstate" mapstructure:"superstate"`

	OnEntry []string `json:"on_entry" mapstructure:"on_entry"`
	OnExit  []string `json:"on_exit" mapstructure:"on_exit"`

	Transitions []LoaderTransition `json:"transitions" mapstructure:"transitions"`

	// Triggers declares trigger argument shapes as positional type names.
	// Declarations merge across documents; redeclaring a trigger with
	// different params is an error.
	Triggers map[string][]string `json:"triggers" mapstructure:"triggers"`

	// Name optionally names the machine. The first non-empty value wins.
	Name string `json:"name" mapstructure:"name"`
}

// LoaderTransition mirrors schema.TransitionDef for frontmatter decoding.
// Destination references may carry a file extension (to: review.md); it is
// stripped during assembly.
type LoaderTransition struct {
	Trigger  string `json:"trigger" mapstructure:"trigger"`
	To       string `json:"to" mapstructure:"to"`
	Guard    string `json:"guard" mapstructure:"guard"`
	Dynamic  string `json:"dynamic" mapstructure:"dynamic"`
	Internal string `json:"internal" mapstructure:"internal"`
	Ignore   bool   `json:"ignore" mapstructure:"ignore"`
}
