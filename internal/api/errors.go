package api

import (
    "errors"
    "net/http"

    "github.com/local/tourneur/internal/ai"
    "github.com/local/tourneur/internal/document"
    "github.com/local/tourneur/internal/filetype"
    "github.com/local/tourneur/internal/storage"
)

// errUnsupportedOperation is returned for page routes on non-PDF documents.
var errUnsupportedOperation = errors.New("operation is only supported for PDF documents")

// requestError is a client mistake that has no domain error of its own.
type requestError struct {
    status int
    code   string
    msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(code, msg string) error {
    return &requestError{status: http.StatusBadRequest, code: code, msg: msg}
}

// errorBody carries the message twice: under error for structured clients
// and as a flat detail string for clients that only show a message.
type errorBody struct {
    Error struct {
        Code    string `json:"code"`
        Message string `json:"message"`
    } `json:"error"`
    Detail string `json:"detail"`
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
    var b errorBody
    b.Error.Code = code
    b.Error.Message = msg
    b.Detail = msg
    writeJSON(w, status, b)
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
    var (
        unsupported *filetype.UnsupportedError
        rangeErr    *document.RangeError
        openErr     *document.OpenError
        recogErr    *ai.RecognitionError
        reqErr      *requestError
        tooLarge    *http.MaxBytesError
    )
    switch {
    case errors.As(err, &reqErr):
        return reqErr.status, reqErr.code
    case errors.As(err, &unsupported):
        return http.StatusBadRequest, "unsupported_file_type"
    case errors.Is(err, storage.ErrNotFound):
        return http.StatusNotFound, "document_not_found"
    case errors.As(err, &rangeErr):
        return http.StatusBadRequest, "page_out_of_range"
    case errors.As(err, &openErr):
        return http.StatusUnprocessableEntity, "document_open_error"
    case errors.As(err, &recogErr):
        return http.StatusBadGateway, "recognition_error"
    case errors.Is(err, errUnsupportedOperation):
        return http.StatusNotImplemented, "unsupported_operation"
    case errors.As(err, &tooLarge):
        return http.StatusRequestEntityTooLarge, "file_too_large"
    default:
        return http.StatusInternalServerError, "internal_error"
    }
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
    status, code := classify(err)
    msg := err.Error()
    lg := logger(r)
    if status >= 500 {
        lg.Error().Err(err).Str("code", code).Msg("request failed")
        if status == http.StatusInternalServerError { msg = "internal server error" }
    } else {
        lg.Info().Err(err).Str("code", code).Msg("request rejected")
    }
    writeJSONError(w, status, code, msg)
}
