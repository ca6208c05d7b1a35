package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"insurance-checkout/internal/common/errors"
)

// rejectFunc builds the error for a 4xx the caller caused.
type rejectFunc func(status int, message string, fields map[string]string) error

func rejectAsValidation(_ int, message string, fields map[string]string) error {
	return errors.NewValidationFailedError(message, fields)
}

func rejectAsPayment(_ int, message string, fields map[string]string) error {
	details := ""
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+fields[k])
		}
		details = strings.Join(parts, "; ")
	}
	return errors.NewPaymentRejectedError(message, details)
}

// rejectAsTransport is used where no 4xx is the customer's fault, e.g. polls.
func rejectAsTransport(status int, message string, _ map[string]string) error {
	return errors.NewTransportFailedError("query payment status", fmt.Errorf("status %d: %s", status, message))
}

// errorPayload covers the shapes the backend uses for errors: a top-level
// message, detail or error string, and errors as either a field map or a list.
type errorPayload struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Detail  string          `json:"detail"`
	Errors  json.RawMessage `json:"errors"`
	Data    *struct {
		Message string          `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	} `json:"data"`
}

func decodeError(op string, status int, body []byte, reject rejectFunc) error {
	message, fields := parseErrorPayload(body)

	switch {
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		if message == "" {
			message = http.StatusText(status)
		}
		return errors.NewTransportFailedError(op, fmt.Errorf("status %d: %s", status, message))
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		// Credentials are refreshed by the token source; a retry may succeed.
		return errors.NewTransportFailedError(op, fmt.Errorf("status %d: %s", status, message))
	case status == http.StatusNotFound && message == "":
		message = "not found"
	}
	return reject(status, message, fields)
}

func parseErrorPayload(body []byte) (string, map[string]string) {
	var p errorPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return strings.TrimSpace(string(body)), nil
	}

	message := firstNonEmpty(p.Message, p.Detail, p.Error)
	raw := p.Errors
	if p.Data != nil {
		message = firstNonEmpty(message, p.Data.Message)
		if len(raw) == 0 {
			raw = p.Data.Errors
		}
	}
	return message, parseFieldErrors(raw)
}

func parseFieldErrors(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err == nil {
		out := make(map[string]string, len(asMap))
		for field, v := range asMap {
			if msg := flattenMessage(v); msg != "" {
				out[field] = msg
			}
		}
		return emptyToNil(out)
	}

	var asList []struct {
		Field   string `json:"field"`
		Path    string `json:"path"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &asList); err == nil {
		out := make(map[string]string, len(asList))
		for _, e := range asList {
			field := firstNonEmpty(e.Field, e.Path)
			if field == "" || e.Message == "" {
				continue
			}
			if prev, ok := out[field]; ok {
				out[field] = prev + "; " + e.Message
			} else {
				out[field] = e.Message
			}
		}
		return emptyToNil(out)
	}
	return nil
}

func flattenMessage(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func emptyToNil(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}
