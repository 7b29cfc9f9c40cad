package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
	"github.com/fairyhunter13/pitch-evaluator/internal/usecase"
)

const maxBodyBytes = 1 << 20

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their JSON name.
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return vld
}

// decodeJSON reads a capped JSON body into dst. An empty body is accepted
// when allowEmpty is set so optional-body endpoints work without one.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && allowEmpty:
		return nil
	default:
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrInvalidArgument, mbe.Limit)
		}
		return fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument)
	}
}

// validateStruct runs validator tags on v and returns per-field failures.
func validateStruct(v any) (map[string]string, error) {
	err := getValidator().Struct(v)
	if err == nil {
		return nil, nil
	}
	details := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			details[fe.Field()] = fe.Tag()
		}
	}
	return details, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
}

// acceptsJSON reports whether the client accepts a JSON response.
func acceptsJSON(r *http.Request) bool {
	a := r.Header.Get("Accept")
	return a == "" || strings.Contains(a, "*/*") || strings.Contains(a, "application/json") || strings.Contains(a, "application/*")
}

// parseListQuery validates the company listing query parameters.
func parseListQuery(q url.Values) (usecase.ListInput, map[string]string, error) {
	in := usecase.ListInput{
		Source: strings.TrimSpace(q.Get("source")),
		UserID: strings.TrimSpace(q.Get("user_id")),
	}
	details := map[string]string{}
	intParam := func(name string, min, max int, dst *int) {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < min || n > max {
			details[name] = fmt.Sprintf("must be an integer between %d and %d", min, max)
			return
		}
		*dst = n
	}
	intParam("min_score", 0, 100, &in.MinScore)
	intParam("page", 1, 1_000_000, &in.Page)
	intParam("limit", 1, 100, &in.Limit)
	if len(details) > 0 {
		return in, details, fmt.Errorf("%w: invalid query parameters", domain.ErrInvalidArgument)
	}
	return in, nil, nil
}
