package config

import (
	"fmt"
	"os"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// EnvironmentConfig holds the service endpoints for a deployment environment.
type EnvironmentConfig struct {
	Moniker            string
	ElasticsearchURL   string
	RetrievalIndex     string
	EmbeddingModelID   string
	ProfilesPath       string
	SQLEndpointURL     string
	ExplainEndpointURL string
}

func EnvironmentConfigForEnv(env string) (*EnvironmentConfig, error) {
	var config *EnvironmentConfig
	switch env {
	case EnvLocal:
		config = &EnvironmentConfig{
			Moniker:          EnvLocal,
			ElasticsearchURL: LocalElasticsearchURL,
			RetrievalIndex:   LocalRetrievalIndex,
			ProfilesPath:     LocalProfilesPath,
		}
	case EnvDev:
		config = &EnvironmentConfig{
			Moniker:          EnvDev,
			ElasticsearchURL: DevElasticsearchURL,
			RetrievalIndex:   DevRetrievalIndex,
			EmbeddingModelID: DefaultEmbeddingModelID,
			ProfilesPath:     DevProfilesPath,
		}
	case EnvProd:
		config = &EnvironmentConfig{
			Moniker:          EnvProd,
			ElasticsearchURL: ProdElasticsearchURL,
			RetrievalIndex:   ProdRetrievalIndex,
			EmbeddingModelID: DefaultEmbeddingModelID,
			ProfilesPath:     ProdProfilesPath,
		}
	default:
		return nil, fmt.Errorf("invalid environment %q, must be one of: %s, %s, %s", env, EnvLocal, EnvDev, EnvProd)
	}

	if v := os.Getenv("GENBI_ELASTICSEARCH_URL"); v != "" {
		config.ElasticsearchURL = v
	}
	if v := os.Getenv("GENBI_RETRIEVAL_INDEX"); v != "" {
		config.RetrievalIndex = v
	}
	if v := os.Getenv("GENBI_EMBEDDING_MODEL_ID"); v != "" {
		config.EmbeddingModelID = v
	}
	if v := os.Getenv("GENBI_PROFILES_PATH"); v != "" {
		config.ProfilesPath = v
	}
	// The specialized endpoints are opt-in; no environment configures them by default.
	config.SQLEndpointURL = os.Getenv("GENBI_SQL_ENDPOINT_URL")
	config.ExplainEndpointURL = os.Getenv("GENBI_EXPLAIN_ENDPOINT_URL")

	return config, nil
}
