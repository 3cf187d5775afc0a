// Package configs provides embedded configuration artifacts for eventindexer.
//
// Files:
//   - index-mapping.json: mapping and settings every partition index is
//     created with. It keeps the Elasticsearch mapping document shape so the
//     same artifact can be applied to either backend.
//   - config.example.yaml: template written by `eventindexer config init`.
package configs

import _ "embed"

// IndexMapping is the raw partition mapping template.
//
//go:embed index-mapping.json
var IndexMapping []byte

// ConfigTemplate is the annotated example configuration.
//
//go:embed config.example.yaml
var ConfigTemplate string
