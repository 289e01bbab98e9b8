package mcpserver

import "encoding/json"

const manifestSchema = "https://static.modelcontextprotocol.io/schemas/2025-10-17/server.schema.json"

// Manifest is the registry description of the server (server.json).
type Manifest struct {
	Schema      string      `json:"$schema"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Repository  *Repository `json:"repository,omitempty"`
	Packages    []Package   `json:"packages,omitempty"`
}

// Repository points at the source code.
type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Package is one way to install and start the server.
type Package struct {
	RegistryType         string     `json:"registryType"`
	Identifier           string     `json:"identifier"`
	PackageArguments     []Argument `json:"packageArguments,omitempty"`
	EnvironmentVariables []EnvVar   `json:"environmentVariables,omitempty"`
	Transport            Transport  `json:"transport"`
}

// Argument is a command-line argument passed to the package.
type Argument struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// EnvVar is an environment variable the server reads.
type EnvVar struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsRequired  bool   `json:"isRequired,omitempty"`
	IsSecret    bool   `json:"isSecret,omitempty"`
}

// Transport names the protocol transport.
type Transport struct {
	Type string `json:"type"`
}

// serverEnv lists the settings a registry client may want to provide.
var serverEnv = []EnvVar{
	{Name: "KLONE_CONFIG", Description: "Path to a klone config file"},
	{Name: "KLONE_CATALOG", Description: "Path to the course catalog manifest"},
	{Name: "KLONE_REPORT_DRIVER", Description: "Report store driver: memory, sqlite or postgres"},
	{Name: "KLONE_REPORT_DSN", Description: "Report store connection string", IsSecret: true},
}

// GenerateManifest returns the indented server.json for version.
func GenerateManifest(version string) ([]byte, error) {
	if version == "" {
		version = "0.0.0"
	}
	m := Manifest{
		Schema:      manifestSchema,
		Name:        "io.github.panbanda/klone",
		Description: "Code clone detection for student submissions across a course",
		Version:     version,
		Repository:  &Repository{URL: "https://github.com/panbanda/klone", Source: "github"},
		Packages: []Package{{
			RegistryType:         "oci",
			Identifier:           "ghcr.io/panbanda/klone:" + version,
			PackageArguments:     []Argument{{Type: "positional", Value: "mcp"}},
			EnvironmentVariables: serverEnv,
			Transport:            Transport{Type: "stdio"},
		}},
	}
	return json.MarshalIndent(m, "", "  ")
}
