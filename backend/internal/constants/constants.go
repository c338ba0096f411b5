package constants

// Knowledge base layout defaults
const (
	// DefaultFactsFile is the fact source read when PKM_FACTS_FILE is unset
	DefaultFactsFile = "facts.pl"
	// DefaultRelationsCSV is where export writes the edge table
	DefaultRelationsCSV = "relations.csv"
	// DefaultKnowledgeDir holds the files that notes point at
	DefaultKnowledgeDir = "files"
)

// DefaultIgnoreGlobs are file names the knowledge watcher never turns into
// notes. macOS leaves these behind on external drives.
var DefaultIgnoreGlobs = []string{"._*", ".DS_Store"}

// Watcher constants
const (
	// DefaultDebounceMillis coalesces the burst of events an editor save produces
	DefaultDebounceMillis = 200
)

// Neo4j defaults
const (
	DefaultNeo4jURI      = "bolt://localhost:7687"
	DefaultNeo4jUser     = "neo4j"
	DefaultNeo4jDatabase = "pkm"
)
