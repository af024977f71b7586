package config

const (
	// Local constants.
	LocalElasticsearchURL = "http://localhost:9200"
	LocalRetrievalIndex   = "genbi-local"
	LocalProfilesPath     = "profiles.yaml"

	// Dev constants.
	DevElasticsearchURL = "http://elasticsearch.genbi-dev.svc.cluster.local:9200"
	DevRetrievalIndex   = "genbi-dev"
	DevProfilesPath     = "/etc/genbi/profiles.yaml"

	// Prod constants.
	ProdElasticsearchURL = "http://elasticsearch.genbi.svc.cluster.local:9200"
	ProdRetrievalIndex   = "genbi"
	ProdProfilesPath     = "/etc/genbi/profiles.yaml"

	// Embedding model deployed in the Elasticsearch ML node for kNN query vectors.
	DefaultEmbeddingModelID = ".multilingual-e5-small"
)

// DefaultModelIDs are the model identifiers a question may select when the
// profiles file does not declare its own list.
var DefaultModelIDs = []string{
	"claude-sonnet-4-5",
	"claude-haiku-4-5",
	"claude-opus-4-1",
}
