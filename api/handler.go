package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RouterHandlerFn is the function signature for adding handlers to the HTTP router.
type RouterHandlerFn = func(r *Request) (interface{}, error)

// Request represents an HTTP request to the API.
// It contains the request Body data, the URL path and the HTTP context.
// The context can be used for obtaining URL parameters and sending responses.
type Request struct {
	Data    []byte
	Path    []string
	Context *HTTPContext
}

// HTTPContext is the Context for an HTTP request.
type HTTPContext struct {
	Writer  http.ResponseWriter
	Request *http.Request
}

// URLParam gets a URL parameter. For path parameters (specified in the path
// pattern as {key}), it uses chi.URLParam. For query parameters (?key=value),
// it uses URL.Query(). If the key is not found, it returns nil. Else it
// returns a slice of values with at least one element.
func (h *HTTPContext) URLParam(key string) []string {
	// First try path parameter
	if param := chi.URLParam(h.Request, key); param != "" {
		return []string{param}
	}
	// Then try query parameter
	keys := h.Request.URL.Query()
	if k, ok := keys[key]; ok {
		return k
	}
	return nil
}

// IntParam returns the named query parameter as an int, or def when absent.
func (h *HTTPContext) IntParam(key string, def int) (int, error) {
	values := h.URLParam(key)
	if values == nil {
		return def, nil
	}
	v, err := strconv.Atoi(values[0])
	if err != nil {
		return 0, fmt.Errorf("parameter %s must be an integer", key)
	}
	return v, nil
}

// FloatParam returns the named query parameter as a float pointer, or nil
// when absent.
func (h *HTTPContext) FloatParam(key string) (*float64, error) {
	values := h.URLParam(key)
	if values == nil {
		return nil, nil
	}
	v, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return nil, fmt.Errorf("parameter %s must be a number", key)
	}
	return &v, nil
}

// StringParam returns the named query parameter, or "" when absent.
func (h *HTTPContext) StringParam(key string) string {
	if values := h.URLParam(key); values != nil {
		return values[0]
	}
	return ""
}

// Send replies the request with the provided message.
func (h *HTTPContext) Send(msg []byte, httpStatusCode int) error {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Msgf("recovered http send panic: %v", r)
		}
	}()

	if httpStatusCode < 100 || httpStatusCode >= 600 {
		return fmt.Errorf("http status code %d not supported", httpStatusCode)
	}
	if h.Request.Context().Err() != nil {
		// The connection was closed, so don't try to write to it.
		return fmt.Errorf("connection is closed")
	}
	h.Writer.Header().Set("Content-Type", "application/json")
	h.Writer.WriteHeader(httpStatusCode)

	if len(msg) > 0 {
		log.Debug().Msgf("response: %s", msg)
		if _, err := h.Writer.Write(msg); err != nil {
			return err
		}
	}
	// Ensure we end the response with a newline, to be nice.
	_, err := h.Writer.Write([]byte("\n"))
	return err
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, httpErr *HTTPError) {
	msg, err := json.Marshal(&errorResponse{Error: httpErr.Message})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal error response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if _, err := w.Write([]byte(`{"error":"internal server error"}`)); err != nil {
			log.Error().Err(err).Msg("failed to write response")
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.Code)
	if _, err := w.Write(msg); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

// routerHandler is a wrapper around the HTTP handler function to handle the
// request and response. It reads the request body, calls the handler function
// and sends the handler's return value as the raw JSON response body: the
// tracker protocol and the bulk tooling both depend on exact response shapes,
// so no envelope is added. Errors are logged and returned to the client as
// `{"error": message}` with the mapped status code.
func (a *API) routerHandler(handlerFunc RouterHandlerFn) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		hc := &HTTPContext{Request: req, Writer: w}
		var body []byte
		if req.Body != nil {
			var err error
			body, err = io.ReadAll(req.Body)
			if err != nil {
				log.Warn().Err(err).Msg("failed to read request body")
				writeError(w, ErrInvalidJSON.WithErr(err))
				return
			}
			if err := req.Body.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close request body")
				writeError(w, ErrInternalServerError.WithErr(err))
				return
			}
			if len(body) > 0 {
				log.Debug().Msgf("request: %s", func() string {
					if len(body) > 1024 {
						return fmt.Sprintf("%s...", body[:1024])
					}
					return string(body)
				}())
			}
		}
		request := &Request{
			Data:    body,
			Context: hc,
			Path:    strings.Split(req.URL.Path, "/")[1:],
		}

		handlerResp, err := handlerFunc(request)
		if err != nil {
			log.Warn().Err(err).Msg("failed request")

			// Convert error to HTTPError if it isn't one already
			httpErr, ok := err.(*HTTPError)
			if !ok {
				httpErr = ErrInternalServerError.WithErr(err)
			}
			writeError(w, httpErr)
			return
		}

		data, err := json.Marshal(handlerResp)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal response")
			writeError(w, ErrInternalServerError.WithErr(err))
			return
		}
		if err := hc.Send(data, http.StatusOK); err != nil {
			log.Error().Err(err).Msg("failed to write response")
		}
	}
}
