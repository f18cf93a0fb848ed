package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// NoResponse tells the Respond function to not respond to the request. In
// these cases the app layer code has already done so.
type NoResponse struct{}

// NewNoResponse constructs a no response value.
func NewNoResponse() NoResponse {
	return NoResponse{}
}

// Encode implements the Encoder interface.
func (NoResponse) Encode() ([]byte, string, error) {
	return nil, "", nil
}

// Accepted acknowledges a request that is processed asynchronously.
type Accepted struct{}

// Encode implements the Encoder interface.
func (Accepted) Encode() ([]byte, string, error) { return nil, "", nil }

// HTTPStatus implements the httpStatus interface.
func (Accepted) HTTPStatus() int { return http.StatusAccepted }

// JSON encodes any value as a JSON response body.
type JSON[T any] struct {
	Value T
}

// NewJSON wraps v.
func NewJSON[T any](v T) JSON[T] { return JSON[T]{Value: v} }

// Encode implements the Encoder interface.
func (j JSON[T]) Encode() ([]byte, string, error) {
	data, err := json.Marshal(j.Value)
	return data, "application/json", err
}

// httpStatus lets a response choose its status code.
type httpStatus interface {
	HTTPStatus() int
}

// Respond sends a response to the client.
func Respond(ctx context.Context, w http.ResponseWriter, resp Encoder) error {
	if _, ok := resp.(NoResponse); ok {
		return nil
	}

	// If the context has been canceled, it means the client is no longer
	// waiting for a response.
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("client disconnected, do not send response")
		}
	}

	statusCode := http.StatusOK

	switch v := resp.(type) {
	case httpStatus:
		statusCode = v.HTTPStatus()

	case error:
		statusCode = http.StatusInternalServerError

	default:
		if resp == nil {
			statusCode = http.StatusNoContent
		}
	}

	setStatusCode(ctx, statusCode)

	if statusCode == http.StatusNoContent || resp == nil {
		w.WriteHeader(statusCode)
		return nil
	}

	data, contentType, err := resp.Encode()
	if err != nil {
		return err
	}

	if len(data) == 0 {
		w.WriteHeader(statusCode)
		return nil
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)

	if _, err := w.Write(data); err != nil {
		return err
	}

	return nil
}
