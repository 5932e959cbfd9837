package http

import (
	"encoding/json"
	ers "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/golang/gddo/httputil/header"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/utils"
	"github.com/sta1300/notifier-backend/internal/utils/errors"
	v1 "github.com/sta1300/notifier-backend/pkg/api/v1"
	"gopkg.in/go-playground/validator.v9"
)

const maxBodyBytes = 1048576

// DecodeJSONBody decodes a single JSON object from the request body into dst and validates it when dst
// is a struct. Based on https://www.alexedwards.net/blog/how-to-properly-parse-a-json-request-body
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Header.Get("Content-Type") != "" {
		value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
		if value != "application/json" {
			msg := "Content-Type header is not application/json"
			return &errors.MalformedRequestError{Code: http.StatusUnsupportedMediaType, Msg: msg}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError

		switch {
		case ers.As(err, &syntaxError):
			msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
			return &errors.MalformedRequestError{Msg: msg}

		case ers.Is(err, io.ErrUnexpectedEOF):
			msg := "Request body contains badly-formed JSON"
			return &errors.MalformedRequestError{Msg: msg}

		case ers.As(err, &unmarshalTypeError):
			msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
			return &errors.MalformedRequestError{Msg: msg}

		case ers.Is(err, io.EOF):
			msg := "Request body must not be empty"
			return &errors.MalformedRequestError{Msg: msg}

		case err.Error() == "http: request body too large":
			msg := "Request body must not be larger than 1MB"
			return &errors.MalformedRequestError{Code: http.StatusRequestEntityTooLarge, Msg: msg}

		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if err != io.EOF {
		msg := "Request body must only contain a single JSON object"
		return &errors.MalformedRequestError{Msg: msg}
	}

	if reflect.Indirect(reflect.ValueOf(dst)).Kind() != reflect.Struct {
		return nil
	}

	if err = utils.Validate.Struct(dst); err != nil {
		return &errors.MalformedRequestError{Msg: validationMessage(dst, err)}
	}

	return nil
}

// DecodeJSONOrReportError decodes the body and writes the error response itself when it fails.
func DecodeJSONOrReportError(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := DecodeJSONBody(w, r, dst); err != nil {
		logging.FromContext(r.Context()).Debugf("Cannot decode request: %v", err)
		SendErrorResponse(w, r, err)
		return false
	}
	return true
}

// SendResponse writes body as JSON with the given status.
func SendResponse(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	js, err := json.Marshal(body)
	if err != nil {
		logging.FromContext(r.Context()).Errorf("Cannot marshal response: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(js); err != nil {
		logging.FromContext(r.Context()).Warnf("Cannot write response: %v", err)
	}
}

// SendErrorResponse maps typed errors to their status. Anything else is an opaque 500.
func SendErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var ne errors.NotifierError
	if ers.As(err, &ne) && ne.Status() != http.StatusInternalServerError {
		SendResponse(w, r, ne.Status(), v1.ErrorResponse{Error: ne.Error()})
		return
	}

	SendResponse(w, r, http.StatusInternalServerError, v1.ErrorResponse{Error: "Internal server error"})
}

func validationMessage(dst interface{}, err error) string {
	var verrs validator.ValidationErrors
	if !ers.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Sprintf("Validation of the request has failed: %v", err.Error())
	}

	t := reflect.Indirect(reflect.ValueOf(dst)).Type()
	var msgs []string
	for _, fe := range verrs {
		name := fe.Field()
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag := strings.Split(f.Tag.Get("json"), ",")[0]; tag != "" && tag != "-" {
				name = tag
			}
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", name))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on the '%s' rule", name, fe.Tag()))
		}
	}

	return strings.Join(msgs, ", ")
}
