// Package constants holds qualsim file names, default limits and output
// format names shared across packages.
package constants

// Data directory layout
const (
	// DataDirName is the per-project and per-user data directory.
	DataDirName = ".qualsim"

	// KBDirName holds knowledge base YAML files inside a data directory.
	KBDirName = "kb"

	// RunsDBName is the SQLite database of finished runs.
	RunsDBName = "qualsim.db"

	// ConfigFileName is the YAML configuration file inside a data directory.
	ConfigFileName = "config.yaml"

	// DecisionsFileName is the JSONL trace of branch and rejection decisions.
	DecisionsFileName = "decisions.jsonl"

	// AuditFileName is the JSONL log of MCP tool calls.
	AuditFileName = "audit.jsonl"
)

// Simulation limits
const (
	// DefaultMaxNodes caps the size of a simulation tree. A run that reaches
	// it stops and is marked truncated.
	DefaultMaxNodes = 10000

	// DefaultMaxBranchDepth caps nested forks within one action application.
	// Every fork narrows one attribute, so a type never needs more forks than
	// it has attributes.
	DefaultMaxBranchDepth = 16

	// DefaultParallelism is the number of frontier nodes expanded at once.
	DefaultParallelism = 1

	// MaxParallelism bounds the configurable parallelism.
	MaxParallelism = 64
)

// Output formats for trees and documents.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatDOT  = "dot"
	FormatText = "text"
)

// DocumentVersion is the version of the serialized tree document.
const DocumentVersion = 1

// ValidFormats lists the output formats accepted by --format.
var ValidFormats = map[string]bool{
	FormatJSON: true,
	FormatYAML: true,
	FormatDOT:  true,
	FormatText: true,
}
