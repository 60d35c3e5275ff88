package handler

import (
	"net/http"

	"github.com/capitalize-ai/ragchat/internal/llm"
)

// ModelList is the body of GET /api/v1/models.
type ModelList struct {
	Default string   `json:"default"`
	Models  []string `json:"models"`
}

// WriteModels writes the model keys the registry can route.
func WriteModels(w http.ResponseWriter, registry *llm.Registry) {
	writeJSON(w, http.StatusOK, ModelList{
		Default: registry.DefaultKey(),
		Models:  registry.Keys(),
	})
}
