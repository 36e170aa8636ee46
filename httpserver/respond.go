package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tobiasfell/quill/auth"
)

// codeInvalidBody is the wire code for request bodies that fail
// decoding or validation; it sits outside the auth taxonomy.
const codeInvalidBody = 4000

// dataBody is the success envelope shared by every endpoint.
type dataBody struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// errorBody is the failure envelope: a human-readable message plus the
// machine-readable code from the auth error table.
type errorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")

	body, err := json.Marshal(v)
	if err != nil {
		s.log.Error("response body encode failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"the intended response body could not be encoded","code":5000}`))
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any, message string) {
	s.writeJSON(w, status, dataBody{Data: data, Message: message})
}

// writeError maps any error onto the wire contract. Auth errors carry
// their table status and code; body validation failures map to 400;
// everything unrecognized is an internal error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) || errors.Is(err, errBadBody) {
		s.writeJSON(w, http.StatusBadRequest, errorBody{
			Error: "request body contains invalid fields",
			Code:  codeInvalidBody,
		})
		return
	}

	msg := err.Error()
	if errors.Is(err, auth.ErrInternal) {
		// Internals were already logged at the source with detail;
		// the client gets a generic message.
		msg = "something went wrong while processing your request, try again later"
	}

	s.writeJSON(w, auth.StatusOf(err), errorBody{
		Error: msg,
		Code:  auth.CodeOf(err),
	})
}

var errBadBody = errors.New("malformed request body")

// parseBody decodes and validates a JSON request body.
func parseBody[T any](s *Server, r *http.Request) (*T, error) {
	var body T
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, errBadBody
	}
	if err := s.validate.Struct(&body); err != nil {
		return nil, err
	}
	return &body, nil
}
