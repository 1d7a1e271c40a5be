package results

import (
	_ "embed"
	"encoding/json"
)

//go:embed fixtures/sample_envelope.json
var sampleEnvelope []byte

// SampleJSON returns the fixture envelope the Parlay Pilot preview renders
// before a real run exists, as embedded.
func SampleJSON() json.RawMessage {
	return append(json.RawMessage(nil), sampleEnvelope...)
}
