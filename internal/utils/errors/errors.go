package errors

import "net/http"

//NotifierError Error with HTTP status.
type NotifierError interface {
	Status() int
	Error() string
}

//UnknownError Unknown error
type UnknownError struct {
	Msg string
}

func (e *UnknownError) Error() string {
	return e.Msg
}

//Status Status of the error.
func (e *UnknownError) Status() int {
	return http.StatusInternalServerError
}

//MalformedRequestError Error for malformed request
type MalformedRequestError struct {
	Code int
	Msg  string
}

func (mr *MalformedRequestError) Error() string {
	return mr.Msg
}

//Status Status of the error, 400 when not set.
func (mr *MalformedRequestError) Status() int {
	if mr.Code == 0 {
		return http.StatusBadRequest
	}
	return mr.Code
}

//MalformedPayloadError Device status payload without the Stability root.
type MalformedPayloadError struct {
	Msg string
}

func (e *MalformedPayloadError) Error() string {
	return e.Msg
}

//Status Status of the error.
func (e *MalformedPayloadError) Status() int {
	return http.StatusBadRequest
}

//NotFoundError Error for missing entity
type NotFoundError struct {
	Msg string
}

func (mr *NotFoundError) Error() string {
	return mr.Msg
}

//Status Status of the error.
func (mr *NotFoundError) Status() int {
	return http.StatusNotFound
}
