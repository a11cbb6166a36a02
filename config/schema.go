package config

import "github.com/invopop/jsonschema"

// Schema returns the JSON schema of a culling config file.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}
