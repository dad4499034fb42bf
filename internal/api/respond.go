package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/owoblo/quote2move/internal/model"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, title, message string) {
	writeJSON(w, code, errorBody{Error: title, Message: message})
}

// decode reads a JSON body into v. It writes the 400 itself and returns
// false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "request body must be valid JSON"
		var mbe *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			msg = "request body is empty"
		case errors.As(err, &mbe):
			msg = "request body is too large"
		}
		writeError(w, http.StatusBadRequest, "Invalid request", msg)
		return false
	}
	return true
}

// validationError writes a 400 when err is a ValidationError.
func validationError(w http.ResponseWriter, err error) bool {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "Invalid request", ve.Error())
		return true
	}
	return false
}
