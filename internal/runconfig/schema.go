package runconfig

// runConfigSchema is the embedded JSON Schema validated against a
// loaded runconfig document before it is unmarshalled into RunConfig.
const runConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "game": {"type": "string"},
    "build": {"type": "string"},
    "thcrap_dir": {"type": "string"},
    "patches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "archive"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "archive": {"type": "string", "minLength": 1},
          "servers": {"type": "array", "items": {"type": "string"}},
          "motd": {"type": "string"},
          "motd_title": {"type": "string"},
          "motd_type": {"type": "string"},
          "update": {"type": "boolean"},
          "thcrap_version_min": {"type": "integer"}
        }
      }
    }
  }
}`

// manifestSchema validates a per-patch files.js manifest: an object
// whose values are either an integer CRC32 or null (tombstone).
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": ["integer", "null"]
  }
}`
