package forge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
)

// mapError turns an SDK error into the forgeerr taxonomy. status is the
// HTTP status of the response the SDK returned, 0 when there was none.
func mapError(backend Backend, op, entity string, status int, err error) error {
	if err == nil {
		return nil
	}
	b := string(backend)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %s: %w", b, op, err)
	}

	var fe *forgeerr.Error
	if errors.As(err, &fe) {
		return forgeerr.WithContext(err, b, op)
	}

	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		out := forgeerr.RateLimited(http.StatusForbidden, rle.Rate.Reset.Time, nil)
		out.Message = rle.Message
		return forgeerr.WithContext(out, b, op)
	}

	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		var reset time.Time
		if abuse.RetryAfter != nil {
			reset = time.Now().Add(*abuse.RetryAfter)
		}
		out := forgeerr.RateLimited(http.StatusForbidden, reset, nil)
		out.Message = abuse.Message
		return forgeerr.WithContext(out, b, op)
	}

	var ghe *github.ErrorResponse
	if errors.As(err, &ghe) {
		code := status
		if ghe.Response != nil {
			code = ghe.Response.StatusCode
		}
		return forgeerr.WithContext(forgeerr.FromStatus(code, githubMessage(ghe), githubBody(ghe)), b, op)
	}

	var gle *gitlab.ErrorResponse
	if errors.As(err, &gle) {
		code := status
		if gle.Response != nil {
			code = gle.Response.StatusCode
		}
		return forgeerr.WithContext(forgeerr.FromStatus(code, gle.Message, gle.Body), b, op)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || (status >= 200 && status < 300) {
		return forgeerr.WithContext(forgeerr.Conversion(b, entity, err), b, op)
	}

	return fmt.Errorf("%s: %s: %w", b, op, err)
}

// githubBody returns the raw error body go-github re-populated on the
// response, or the re-encoded payload when it is gone.
func githubBody(e *github.ErrorResponse) []byte {
	if e.Response != nil && e.Response.Body != nil {
		if data, err := io.ReadAll(io.LimitReader(e.Response.Body, forgeerr.MaxBodyLen)); err == nil && len(data) > 0 {
			return data
		}
	}
	data, _ := json.Marshal(e)
	return data
}

// githubMessage joins the top-level message with the validation errors.
func githubMessage(e *github.ErrorResponse) string {
	parts := []string{e.Message}
	for _, ve := range e.Errors {
		detail := ve.Message
		if detail == "" {
			detail = ve.Code
		}
		if ve.Field != "" {
			detail = ve.Field + ": " + detail
		}
		if ve.Resource != "" {
			detail = ve.Resource + "." + detail
		}
		parts = append(parts, detail)
	}
	return strings.Join(parts, "; ")
}
