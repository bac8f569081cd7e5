// Package upstream maps inbound request bodies to the upstream provider
// that should serve them.
package upstream

import "github.com/tidwall/gjson"

// AltModelId is the reserved model identifier that routes a request to
// the alternate upstream instead of the default one.
const AltModelId = "qwen-2.5-coder-32b"

type Target struct {
	Name       string
	BaseUrl    string
	Credential string
}

// Registry holds the two upstream targets. Both are configured once at
// startup and never change afterwards.
type Registry struct {
	def Target
	alt Target
}

func NewRegistry(def, alt Target) *Registry {
	return &Registry{
		def: def,
		alt: alt,
	}
}

// Select returns the target for a raw request body. Only a body whose
// model field is the string AltModelId selects the alternate upstream;
// any other value, a non-string model, an absent model, or a malformed
// body all select the default.
func (r *Registry) Select(body []byte) Target {
	result := gjson.GetBytes(body, "model")
	if result.Type == gjson.String && result.Str == AltModelId {
		return r.alt
	}

	return r.def
}

func (r *Registry) Default() Target {
	return r.def
}

func (r *Registry) Alternate() Target {
	return r.alt
}

// StreamRequested reports whether the body asks for a streamed response.
// Anything other than a boolean true, including the string "true", does
// not count.
func StreamRequested(body []byte) bool {
	result := gjson.GetBytes(body, "stream")

	return result.IsBool() && result.Bool()
}
