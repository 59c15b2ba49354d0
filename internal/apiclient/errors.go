package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/msomdec/agun-web/internal/domain"
)

// StatusError is a non-2xx backend response, passed through for the caller to map.
type StatusError struct {
	StatusCode int
	Detail     string
	Fields     map[string]string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend responded %d", e.StatusCode)
}

// Unwrap lets errors.Is(err, domain.ErrUnauthorized) match 401 responses.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	return nil
}

// errorBody covers the shapes the backend uses for errors:
//
//	{"detail": "message"}
//	{"detail": [{"loc": ["body", "email"], "msg": "..."}]}
//	{"error": "message"}
//	{"errors": {"email": "..."}}
type errorBody struct {
	Detail json.RawMessage   `json:"detail"`
	Error  string            `json:"error"`
	Errors map[string]string `json:"errors"`
}

type detailItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func newStatusError(status int, raw []byte) *StatusError {
	e := &StatusError{StatusCode: status, Body: raw}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		e.Detail = strings.TrimSpace(string(raw))
		if len(e.Detail) > 200 {
			e.Detail = e.Detail[:200]
		}
		return e
	}

	e.Detail = body.Error
	if len(body.Errors) > 0 {
		e.Fields = body.Errors
	}
	if len(body.Detail) == 0 {
		return e
	}

	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		e.Detail = text
		return e
	}

	var items []detailItem
	if err := json.Unmarshal(body.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			msgs = append(msgs, it.Msg)
			if field := lastLocString(it.Loc); field != "" {
				if e.Fields == nil {
					e.Fields = map[string]string{}
				}
				e.Fields[field] = it.Msg
			}
		}
		e.Detail = strings.Join(msgs, "; ")
	}
	return e
}

func lastLocString(loc []any) string {
	for i := len(loc) - 1; i >= 0; i-- {
		if s, ok := loc[i].(string); ok && s != "body" {
			return s
		}
	}
	return ""
}
