package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	apierrors "github.com/l3viathan/apy4i/internal/errors"
	"github.com/l3viathan/apy4i/internal/utils"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Wrap wraps a handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct.
// Path parameters are read into string fields tagged `path:"name"` and query
// parameters into string or int fields tagged `query:"name"`.
//
// Example:
//
//	type MatchesRequest struct {
//	    Last int `query:"last"`
//	}
//
//	func (h *KrankHandler) Matches(ctx context.Context, req *MatchesRequest) (*MatchesResponse, error)
func Wrap[In any, Out any](fn func(context.Context, *In) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err2 := r.Body.Close(); err == nil {
			err = err2
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to read request body", "err", err)
			writeError(w, apierrors.BadRequest("Failed to read request body"))
			return
		}
		input := new(In)
		if len(body) > 0 {
			if err := json.Unmarshal(body, input); err != nil {
				slog.ErrorContext(ctx, "Failed to decode request body", "err", err)
				writeError(w, apierrors.BadRequest("Invalid request body"))
				return
			}
		}
		populatePathParams(r, input)
		populateQueryParams(r, input)

		output, err := fn(ctx, input)
		if err != nil {
			var ewsErr apierrors.ErrorWithStatus
			if !errors.As(err, &ewsErr) {
				ewsErr = apierrors.Internal("Internal error")
			}
			slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", ewsErr.StatusCode(), "code", ewsErr.Code())
			writeError(w, ewsErr)
			return
		}
		writeJSON(ctx, w, http.StatusOK, output)
	})
}

// populatePathParams sets struct fields tagged with `path:"paramName"`.
func populatePathParams(r *http.Request, input any) {
	forEachTagged(input, "path", func(field reflect.Value, name string) {
		if v := r.PathValue(name); v != "" && field.Kind() == reflect.String {
			field.SetString(v)
		}
	})
}

// populateQueryParams sets struct fields tagged with `query:"paramName"`.
func populateQueryParams(r *http.Request, input any) {
	query := r.URL.Query()
	forEachTagged(input, "query", func(field reflect.Value, name string) {
		v := query.Get(name)
		if v == "" {
			return
		}
		//nolint:exhaustive // Only string and int are supported for query params
		switch field.Kind() {
		case reflect.String:
			field.SetString(v)
		case reflect.Int:
			if n, err := strconv.Atoi(v); err == nil {
				field.SetInt(int64(n))
			}
		}
	})
}

func forEachTagged(input any, tag string, fn func(reflect.Value, string)) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer || val.Elem().Kind() != reflect.Struct {
		return
	}
	elem := val.Elem()
	typ := elem.Type()
	for i := range typ.NumField() {
		if name := typ.Field(i).Tag.Get(tag); name != "" {
			fn(elem.Field(i), name)
		}
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// writeError writes an error response as JSON with code and details.
func writeError(w http.ResponseWriter, e apierrors.ErrorWithStatus) {
	utils.RespondError(w, e)
}
