package embeddings

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/timrodz/cards-oracle/internal/pipeline"
)

const maxFormMemory = 1 << 20

type requestBody struct {
	SourceCollection string  `json:"source_collection"`
	TargetCollection string  `json:"target_collection"`
	ChunkMappings    *string `json:"chunk_mappings"`
	Limit            *int    `json:"limit"`
	Normalize        *bool   `json:"normalize"`
}

// DecodeRequest reads a pipeline request from a JSON body or from form
// fields. A limit query parameter takes precedence over the body, and
// normalize defaults to true.
func DecodeRequest(r *http.Request) (pipeline.Request, error) {
	var body requestBody
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return pipeline.Request{}, fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
		}
	} else {
		if err := parseForm(r); err != nil {
			return pipeline.Request{}, fmt.Errorf("%w: %v", pipeline.ErrInvalidRequest, err)
		}
		body.SourceCollection = r.FormValue("source_collection")
		body.TargetCollection = r.FormValue("target_collection")
		if _, ok := r.Form["chunk_mappings"]; ok {
			v := r.FormValue("chunk_mappings")
			body.ChunkMappings = &v
		}
		if raw := r.PostFormValue("normalize"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return pipeline.Request{}, fmt.Errorf("%w: normalize must be a boolean", pipeline.ErrInvalidRequest)
			}
			body.Normalize = &v
		}
	}

	limit, err := QueryLimit(r)
	if err != nil {
		return pipeline.Request{}, err
	}
	if limit != nil {
		body.Limit = limit
	}

	req := pipeline.Request{
		SourceCollection: strings.TrimSpace(body.SourceCollection),
		TargetCollection: strings.TrimSpace(body.TargetCollection),
		ChunkMappings:    body.ChunkMappings,
		Limit:            body.Limit,
		Normalize:        true,
	}
	if body.Normalize != nil {
		req.Normalize = *body.Normalize
	}
	return req, nil
}

// QueryLimit parses the optional limit query parameter.
func QueryLimit(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("%w: limit must be an integer >= 1", pipeline.ErrInvalidRequest)
	}
	return &n, nil
}

type indexRequest struct {
	CollectionName            string `json:"collection_name"`
	CollectionEmbeddingsField string `json:"collection_embeddings_field"`
	Similarity                string `json:"similarity"`
}

func decodeIndexRequest(r *http.Request) (indexRequest, error) {
	var req indexRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
	} else {
		if err := parseForm(r); err != nil {
			return req, err
		}
		req.CollectionName = r.FormValue("collection_name")
		req.CollectionEmbeddingsField = r.FormValue("collection_embeddings_field")
		req.Similarity = r.FormValue("similarity")
	}
	req.CollectionName = strings.TrimSpace(req.CollectionName)
	req.CollectionEmbeddingsField = strings.TrimSpace(req.CollectionEmbeddingsField)
	return req, nil
}

func isJSON(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/json"
}

func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}
