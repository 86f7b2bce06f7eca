package docs

import _ "embed"

// AsyncAPISpec describes the /ws/stt streaming protocol.
//
//go:embed asyncapi.yaml
var AsyncAPISpec []byte
