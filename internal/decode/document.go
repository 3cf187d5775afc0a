package decode

// DocType is the document type every decoded event is indexed under.
const DocType = "snowplow_events"

// Source is the value of meta.source on every document.
const Source = "snowplow"

// ClassEnrichedGood is the only classification whose lines are split into fields.
const ClassEnrichedGood = "enriched_good"

// Document is one decoded log line.
type Document struct {
	Meta Meta `json:"meta"`

	// Event maps schema field names to raw values. Nil unless the object
	// is classified as enriched_good.
	Event map[string]string `json:"event,omitempty"`

	// Message is the undecoded line, kept for audit regardless of classification.
	Message string `json:"message"`
}

// Meta carries provenance and classification.
type Meta struct {
	SourceLocation SourceLocation `json:"source_location"`
	Source         string         `json:"source"`
	Classification string         `json:"classification"`
}

// SourceLocation identifies the object a document was decoded from.
type SourceLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// BleveType routes the document to the snowplow_events document mapping.
func (d *Document) BleveType() string {
	return DocType
}
