package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/CTAG07/babbler/pkg/markov"
	"github.com/CTAG07/babbler/pkg/store"
)

const modelsPrefix = "/api/models/"

// MarkovAPI holds the dependencies for the Markov model API handlers.
type MarkovAPI struct {
	svc          *ModelService
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(svc *ModelService, maxBodyBytes int64, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		svc:          svc,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// RegisterRoutes sets up the routing for all /api/models endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/models", m.handleListAndCreateModels)
	mux.HandleFunc(modelsPrefix, m.handleModelByName)
}

// CreateModelRequest creates a model either from a corpus or from a
// previously exported table, never both.
type CreateModelRequest struct {
	Name       string          `json:"name"`
	Order      *int            `json:"order"`
	Corpus     string          `json:"corpus"`
	Serialized json.RawMessage `json:"serialized"`
}

// AddCorpusRequest carries text to add to an existing model.
type AddCorpusRequest struct {
	Corpus string `json:"corpus"`
}

// GenerateResponse is returned by the generate endpoint.
type GenerateResponse struct {
	Model     string   `json:"model"`
	Sentences []string `json:"sentences"`
}

func (m *MarkovAPI) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if m.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, m.maxBodyBytes)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		respondWithError(w, http.StatusBadRequest, "Could not read request body")
		return false
	}
	if err = json.Unmarshal(data, v); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return false
	}
	return true
}

// respondWithServiceError maps service and model errors onto HTTP status codes.
func (m *MarkovAPI) respondWithServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Model not found")
	case errors.Is(err, ErrModelExists):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, markov.ErrInvalidOrder),
		errors.Is(err, markov.ErrMalformedSerialization),
		errors.Is(err, ErrInvalidCount),
		errors.Is(err, store.ErrInvalidRecord):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		m.logger.Error("Failed to "+action, "request_id", requestID(r.Context()), "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to %s: %v", action, err))
	}
}

// handleListAndCreateModels handles GET for listing and POST for creating models.
func (m *MarkovAPI) handleListAndCreateModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		models, err := m.svc.List(r.Context())
		if err != nil {
			m.respondWithServiceError(w, r, "list models", err)
			return
		}
		respondWithJSON(w, http.StatusOK, models)

	case http.MethodPost:
		var req CreateModelRequest
		if !m.decodeBody(w, r, &req) {
			return
		}
		order := 1
		if req.Order != nil {
			order = *req.Order
		}
		if order <= 0 {
			respondWithError(w, http.StatusBadRequest, "Model order must be a positive integer")
			return
		}
		if req.Corpus != "" && len(req.Serialized) > 0 {
			respondWithError(w, http.StatusBadRequest, "Provide either a corpus or a serialized table, not both")
			return
		}

		var info ModelInfo
		var err error
		if len(req.Serialized) > 0 {
			info, err = m.svc.Import(r.Context(), req.Name, order, string(req.Serialized))
		} else {
			info, err = m.svc.Create(r.Context(), req.Name, order, req.Corpus)
		}
		if err != nil {
			m.respondWithServiceError(w, r, "create model", err)
			return
		}
		respondWithJSON(w, http.StatusCreated, info)

	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// splitModelPath returns the unescaped model name and the optional action of
// a /api/models/{name}[/{action}] path. Names may contain escaped slashes.
func splitModelPath(r *http.Request) (name, action string, ok bool) {
	path := strings.TrimPrefix(r.URL.EscapedPath(), modelsPrefix)
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		return "", "", false
	}
	name, err := url.PathUnescape(parts[0])
	if err != nil || name == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		action = parts[1]
	}
	return name, action, true
}

// handleModelByName routes actions for a specific model, e.g., sentences, generate, export, delete.
func (m *MarkovAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	modelName, action, ok := splitModelPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			info, err := m.svc.Get(r.Context(), modelName)
			if err != nil {
				m.respondWithServiceError(w, r, "get model", err)
				return
			}
			respondWithJSON(w, http.StatusOK, info)
		case http.MethodDelete:
			if err := m.svc.Delete(r.Context(), modelName); err != nil {
				m.respondWithServiceError(w, r, "remove model", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}

	case "sentences":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		var req AddCorpusRequest
		if !m.decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Corpus) == "" {
			respondWithError(w, http.StatusBadRequest, "Corpus must not be empty")
			return
		}
		info, err := m.svc.AddCorpus(r.Context(), modelName, req.Corpus)
		if err != nil {
			m.respondWithServiceError(w, r, "add corpus", err)
			return
		}
		respondWithJSON(w, http.StatusOK, info)

	case "generate":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		params, err := parseGenerateParams(r.URL.Query())
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		sentences, err := m.svc.Generate(r.Context(), modelName, params)
		if err != nil {
			m.respondWithServiceError(w, r, "generate", err)
			return
		}
		respondWithJSON(w, http.StatusOK, GenerateResponse{Model: modelName, Sentences: sentences})

	case "export":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		serialized, err := m.svc.Export(r.Context(), modelName)
		if err != nil {
			m.respondWithServiceError(w, r, "export model", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", modelName+".json"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(serialized))

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// parseGenerateParams reads count, max_length, temperature and top_k from the query.
func parseGenerateParams(q url.Values) (GenerateParams, error) {
	var params GenerateParams
	var err error

	intParam := func(key string) (int, error) {
		v := q.Get(key)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("query parameter '%s' must be an integer", key)
		}
		if n < 0 {
			return 0, fmt.Errorf("query parameter '%s' must not be negative", key)
		}
		return n, nil
	}

	if params.Count, err = intParam("count"); err != nil {
		return params, err
	}
	if q.Has("count") && params.Count == 0 {
		return params, errors.New("query parameter 'count' must be at least 1")
	}
	if params.MaxLength, err = intParam("max_length"); err != nil {
		return params, err
	}
	if params.TopK, err = intParam("top_k"); err != nil {
		return params, err
	}
	if v := q.Get("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 {
			return params, errors.New("query parameter 'temperature' must be a non-negative number")
		}
		params.Temperature = &t
	}
	return params, nil
}
