package tools

// Input schemas, one per tool, validated before dispatch. Dates accept
// RFC 3339 timestamps or plain YYYY-MM-DD.

const schemaGetSprints = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["boardId"],
  "properties": {
    "boardId": {"type": "string", "minLength": 1},
    "state": {"type": "string", "enum": ["active", "future", "closed"]}
  }
}`

const schemaGetSprintIssues = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["sprintId"],
  "properties": {
    "sprintId": {"type": "string", "minLength": 1},
    "fields": {"type": "array", "items": {"type": "string"}},
    "maxResults": {"type": "integer", "minimum": 1, "maximum": 100}
  }
}`

const schemaGetIssueDetails = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["issueKey"],
  "properties": {
    "issueKey": {"type": "string", "pattern": "^[A-Za-z][A-Za-z0-9]+-[0-9]+$"},
    "expand": {"type": "array", "items": {"type": "string"}}
  }
}`

const schemaSearchIssuesJQL = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["jql"],
  "properties": {
    "jql": {"type": "string", "minLength": 1},
    "fields": {"type": "array", "items": {"type": "string"}},
    "maxResults": {"type": "integer", "minimum": 1, "maximum": 100}
  }
}`

const schemaCommitWindow = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "owner": {"type": "string"},
    "repo": {"type": "string"},
    "since": {"type": "string"},
    "until": {"type": "string"},
    "maxPages": {"type": "integer", "minimum": 1, "maximum": 20}
  }
}`

const schemaSearchCommits = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["query"],
  "properties": {
    "owner": {"type": "string"},
    "repo": {"type": "string"},
    "query": {"type": "string", "minLength": 1},
    "since": {"type": "string"},
    "until": {"type": "string"}
  }
}`

const schemaPullRequestWindow = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "owner": {"type": "string"},
    "repo": {"type": "string"},
    "since": {"type": "string"},
    "until": {"type": "string"}
  }
}`

const schemaGenerateReport = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["sprintId"],
  "properties": {
    "sprintId": {"type": "string", "minLength": 1},
    "owner": {"type": "string"},
    "repo": {"type": "string"},
    "includeTier1": {"type": "boolean"},
    "includeTier2": {"type": "boolean"},
    "includeTier3": {"type": "boolean"},
    "includeForwardLooking": {"type": "boolean"},
    "includeEnhancedSCM": {"type": "boolean"},
    "noCache": {"type": "boolean"}
  }
}`

const schemaComprehensiveReport = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["sprintId"],
  "properties": {
    "sprintId": {"type": "string", "minLength": 1},
    "owner": {"type": "string"},
    "repo": {"type": "string"},
    "noCache": {"type": "boolean"}
  }
}`

const schemaGetSprintMetrics = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["sprintId"],
  "properties": {
    "sprintId": {"type": "string", "minLength": 1}
  }
}`

const schemaEmpty = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {}
}`

const schemaSearchBoards = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "query": {"type": "string"},
    "limit": {"type": "integer", "minimum": 1, "maximum": 100}
  }
}`
