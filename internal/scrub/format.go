package scrub

// Format describes one report format the harness can check: the files the
// recipe produces for it, the scrubber to apply, and whether comparison is
// structural XML rather than a text diff.
type Format struct {
	Name           string
	OutputPatterns []string
	Scrub          Scrubber
	CompareXML     bool
}

// KnownFormats lists the supported format names in canonical order. A
// fixture's run target may only reference these.
var KnownFormats = []string{"txt", "xml", "html", "sonarqube", "json", "csv"}

// Formats maps a format name to its metadata.
var Formats = map[string]Format{
	"txt": {
		Name:           "txt",
		OutputPatterns: []string{"coverage.txt"},
		Scrub:          Txt,
	},
	"xml": {
		Name:           "xml",
		OutputPatterns: []string{"coverage.xml"},
		Scrub:          XML,
		CompareXML:     true,
	},
	"html": {
		Name:           "html",
		OutputPatterns: []string{"coverage*.html", "coverage.css"},
		Scrub:          HTML,
	},
	"sonarqube": {
		Name:           "sonarqube",
		OutputPatterns: []string{"sonarqube.xml"},
		Scrub:          XML,
		CompareXML:     true,
	},
	"json": {
		Name:           "json",
		OutputPatterns: []string{"coverage*.json"},
		Scrub:          JSON,
	},
	"csv": {
		Name:           "csv",
		OutputPatterns: []string{"coverage.csv"},
		Scrub:          CSV,
	},
}

// Lookup returns the metadata for a format name.
func Lookup(name string) (Format, bool) {
	f, ok := Formats[name]
	return f, ok
}

// IsKnown reports whether name is a supported format.
func IsKnown(name string) bool {
	_, ok := Formats[name]
	return ok
}
