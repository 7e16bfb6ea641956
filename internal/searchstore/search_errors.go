// SPDX-License-Identifier: Apache-2.0

package searchstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type ResponseError struct {
	Type      string      `mapstructure:"type"`
	Reason    string      `mapstructure:"reason"`
	CausedBy  *CausedBy   `mapstructure:"caused_by"`
	RootCause []RootCause `mapstructure:"root_cause"`
}

type CausedBy struct {
	Type   string `mapstructure:"type"`
	Reason string `mapstructure:"reason"`
}

type RootCause struct {
	Type   string `mapstructure:"type"`
	Reason string `mapstructure:"reason"`
}

// RetryableError flags transport failures that are worth retrying with
// backoff (throttling, timeouts, engine overload).
type RetryableError struct {
	Cause error
}

func (r RetryableError) Error() string {
	return fmt.Sprintf("%v", r.Cause)
}

func (r RetryableError) Unwrap() error {
	return r.Cause
}

type ErrResourceAlreadyExists struct {
	Reason string
}

func (e ErrResourceAlreadyExists) Error() string {
	return fmt.Sprintf("resource already exists: %s", e.Reason)
}

// ErrQueryInvalid wraps a generic bad request reported by the engine.
type ErrQueryInvalid struct {
	Cause error
}

func (e ErrQueryInvalid) Error() string {
	return e.Cause.Error()
}

const (
	searchExecutionException       = "search_phase_execution_exception"
	searchParseException           = "search_parse_exception"
	parsingException               = "parsing_exception"
	queryShardException            = "query_shard_exception"
	routingMissingException        = "routing_missing_exception"
	resourceAlreadyExistsException = "resource_already_exists_exception"
	mapperParsingException         = "mapper_parsing_exception"
)

var (
	ErrResourceNotFound = errors.New("search resource not found")

	// ErrRoutingMissing is reported by the engine when a get on a
	// parent/child index is issued without a routing value.
	ErrRoutingMissing = errors.New("routing missing")

	// ErrQueryStringInvalid means the engine could not parse the free text
	// search clause. It is a caller error, not a server fault.
	ErrQueryStringInvalid = errors.New("invalid query string")

	// ErrMappingNotFound is reported when the query references a field
	// without a mapping. Read paths treat it as an empty result.
	ErrMappingNotFound = errors.New("no mapping found")

	ErrMappingConflict = errors.New("mapping conflict")

	ErrTooManyRequests = errors.New("too many requests")
)

type apiResponse interface {
	GetBody() io.ReadCloser
	GetStatusCode() int
	IsError() bool
}

func IsErrResponse(res apiResponse) error {
	if res.IsError() {
		if res.GetStatusCode() == http.StatusNotFound {
			return fmt.Errorf("%w: %w", ErrResourceNotFound, ExtractResponseError(res.GetBody(), res.GetStatusCode()))
		}
		return ExtractResponseError(res.GetBody(), res.GetStatusCode())
	}

	return nil
}

// ExtractResponseError maps the engine error body into the store error
// taxonomy. Unrecognised failures keep the status code and the engine
// reported type and reason.
func ExtractResponseError(body io.ReadCloser, statusCode int) error {
	var e map[string]any
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		return fmt.Errorf("decoding error response: %w", err)
	}

	var errType, errReason string
	if eErr, ok := e["error"]; ok {
		if reason, ok := eErr.(string); ok {
			errType = "<unknown error type>"
			errReason = reason
		} else {
			var respError ResponseError
			if err := mapstructure.Decode(eErr, &respError); err != nil {
				errType = "<unknown error type>"
				errReason = "<unknown error reason>"
			} else {
				errType = respError.Type
				errReason = respError.Reason
				if respError.Type == searchExecutionException {
					if len(respError.RootCause) > 0 {
						errType = respError.RootCause[0].Type
						errReason = respError.RootCause[0].Reason
					} else if respError.CausedBy != nil {
						errType = respError.CausedBy.Type
						errReason = respError.CausedBy.Reason
					}
				}
			}
		}
	}

	if err := classifyError(errType, errReason); err != nil {
		return err
	}

	if err, ok := getRetryableError(statusCode); ok {
		return RetryableError{Cause: err}
	}

	if statusCode == http.StatusNotFound {
		return fmt.Errorf("%w: [%d]: %s: %s", ErrResourceNotFound, statusCode, errType, errReason)
	}

	if statusCode == http.StatusBadRequest {
		return ErrQueryInvalid{
			Cause: fmt.Errorf("%s: %s", errType, errReason),
		}
	}

	return fmt.Errorf("[%d] %s: %s", statusCode, errType, errReason)
}

func classifyError(errType, errReason string) error {
	// an unmapped sort or query field surfaces as a shard level exception
	// whose reason names the missing mapping, it is not a caller syntax
	// error
	if strings.Contains(errReason, "No mapping found for") {
		return fmt.Errorf("%w: %s", ErrMappingNotFound, errReason)
	}

	switch errType {
	case routingMissingException:
		return fmt.Errorf("%w: %s", ErrRoutingMissing, errReason)
	case resourceAlreadyExistsException:
		return ErrResourceAlreadyExists{Reason: errReason}
	case searchParseException, parsingException, queryShardException:
		return fmt.Errorf("%w: %s: %s", ErrQueryStringInvalid, errType, errReason)
	case mapperParsingException:
		return fmt.Errorf("%w: %s", ErrMappingConflict, errReason)
	}

	// older engine versions only surface these in the reason text
	if strings.Contains(errReason, "RoutingMissingException") {
		return fmt.Errorf("%w: %s", ErrRoutingMissing, errReason)
	}
	if strings.Contains(errReason, "SearchParseException") {
		return fmt.Errorf("%w: %s", ErrQueryStringInvalid, errReason)
	}

	return nil
}

func getRetryableError(statusCode int) (error, bool) {
	switch statusCode {
	case http.StatusRequestTimeout:
		return errors.New("request timeout"), true
	case http.StatusTooManyRequests:
		return ErrTooManyRequests, true
	case http.StatusBadGateway:
		return errors.New("bad gateway"), true
	case http.StatusServiceUnavailable:
		return errors.New("service unavailable"), true
	case http.StatusGatewayTimeout:
		return errors.New("gateway timeout"), true
	}

	return nil, false
}
