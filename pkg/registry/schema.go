// pkg/registry/schema.go
package registry

// templateSchema is the JSON Schema every embedded template entry must
// satisfy before it is allowed anywhere near the database.
var templateSchema = map[string]interface{}{
	"type": "object",
	"required": []interface{}{
		"type", "name", "emailSubject", "emailBody", "pushTitle", "pushBody",
	},
	"properties": map[string]interface{}{
		"type": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"name": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"description": map[string]interface{}{
			"type": "string",
		},
		"emailSubject": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"emailBody": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"pushTitle": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"pushBody": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"variables": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"name", "description"},
				"properties": map[string]interface{}{
					"name":        map[string]interface{}{"type": "string", "minLength": 1},
					"description": map[string]interface{}{"type": "string"},
					"example":     map[string]interface{}{"type": "string"},
				},
			},
		},
	},
}
