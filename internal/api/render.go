package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/soaringjerry/Canvass/internal/middleware"
	"github.com/soaringjerry/Canvass/internal/services"
	"github.com/soaringjerry/Canvass/internal/utils"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	QuestionID string `json:"questionId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorTooManyRequests:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeError renders err as {error, code, questionId}. English keeps the
// service's specific message; other locales use the translated reason text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	se, ok := services.AsServiceError(err)
	if !ok || statusFor(se.Code) == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: utils.T(locale, "error.internal"), Code: string(services.ReasonInternal)})
		return
	}
	code := string(se.Reason)
	if code == "" {
		code = string(se.Code)
	}
	msg := se.Message
	if locale != "en" || msg == "" {
		if v, ok := utils.Lookup(locale, "error."+code); ok {
			msg = v
		}
	}
	writeJSON(w, statusFor(se.Code), errorBody{Error: msg, Code: code, QuestionID: se.QuestionID})
}

// decodeJSON reads one JSON object into dst and runs struct validation on it.
func (rt *Router) decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return services.NewInvalidError("request body required")
		}
		return services.NewInvalidError("malformed JSON: " + err.Error())
	}
	if err := rt.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return services.NewInvalidError(err.Error())
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", jsonName(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s", jsonName(fe.Field()), fe.Tag()))
		}
	}
	return services.NewInvalidError(strings.Join(parts, "; "))
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func currentUser(r *http.Request) *middleware.Claims {
	c, _ := middleware.ClaimsFromContext(r.Context())
	return c
}
