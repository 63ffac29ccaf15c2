package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed      = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")          // Wraps original error/status
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")          // Wraps original error/status
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")       // Wraps original error/status
	ErrInvalidURL       = errors.New("unsupported link")
	ErrPageFetch        = errors.New("listing page could not be read")
	ErrNoManifest       = errors.New("no playable manifest found")
	ErrLocked           = errors.New("video is passcode locked")
	ErrDateParse        = errors.New("publish date could not be parsed")
	ErrVideoID          = errors.New("video id could not be extracted")
	ErrMuxing           = errors.New("muxer failed")
	ErrArchiveIO        = errors.New("archive file error")
	ErrCookieFile       = errors.New("cookie file error")
	ErrBrowser          = errors.New("browser automation error")
	ErrParsing          = errors.New("parsing error")    // Wraps specific parsing error (HTML, URL, JSON, base64)
	ErrFilesystem       = errors.New("filesystem error") // Wraps os errors
	ErrDatabase         = errors.New("database error")   // Wraps badger errors
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrConfigValidation = errors.New("configuration validation error")
)

// IsFatal reports whether err should abort the whole run regardless of mode.
// ErrMuxing is not listed here: it is fatal only for single-video runs.
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidURL),
		errors.Is(err, ErrPageFetch),
		errors.Is(err, ErrArchiveIO),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// CategorizeError maps an error to a predefined category string for logging and the state DB.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRetryFailed):
		if errors.Is(err, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		if errors.Is(err, ErrClientHTTPError) {
			return "RetryFailed_HTTPClient"
		}
		underlying := retryCause(err)
		if underlying != nil {
			errMsg := underlying.Error()
			if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "Timeout") || strings.Contains(errMsg, "deadline exceeded") {
				return "RetryFailed_NetworkTimeout"
			}
			if strings.Contains(errMsg, "connection refused") {
				return "RetryFailed_ConnectionRefused"
			}
			if strings.Contains(errMsg, "no such host") {
				return "RetryFailed_DNSLookup"
			}
			var netErr net.Error
			if errors.As(underlying, &netErr) && netErr.Timeout() {
				return "RetryFailed_NetworkTimeout"
			}
			return "RetryFailed_NetworkOther"
		}
		return "RetryFailed_Unknown"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 401 ") {
			return "HTTP_401"
		}
		if strings.Contains(errMsg, " 429 ") {
			return "HTTP_429"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrInvalidURL):
		return "Input_InvalidURL"
	case errors.Is(err, ErrPageFetch):
		return "Listing_PageFetch"
	case errors.Is(err, ErrLocked):
		return "Video_Locked"
	case errors.Is(err, ErrNoManifest):
		return "Video_NoManifest"
	case errors.Is(err, ErrDateParse):
		return "Video_DateParse"
	case errors.Is(err, ErrVideoID):
		return "Video_ID"
	case errors.Is(err, ErrMuxing):
		return "Mux_Failed"
	case errors.Is(err, ErrArchiveIO):
		return "Archive_IO"
	case errors.Is(err, ErrCookieFile):
		return "Input_CookieFile"
	case errors.Is(err, ErrBrowser):
		return "Browser_Automation"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "JSON") {
			return "Content_ParsingJSON"
		}
		if strings.Contains(errMsg, "base64") {
			return "Content_ParsingBase64"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		if errors.Is(err, os.ErrExist) {
			return "Filesystem_Exist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "timeout") {
		return "Network_TimeoutGeneric"
	}
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate") {
		return "Network_TLS"
	}
	if strings.Contains(lowerErrMsg, "reset by peer") {
		return "Network_ConnectionReset"
	}

	return "Unknown"
}

// retryCause returns the error wrapped next to ErrRetryFailed, searching
// through any outer wrapping.
func retryCause(err error) error {
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		errs := u.Unwrap()
		for _, e := range errs {
			if e == ErrRetryFailed {
				for _, sibling := range errs {
					if sibling != ErrRetryFailed {
						return sibling
					}
				}
				return nil
			}
		}
		for _, e := range errs {
			if cause := retryCause(e); cause != nil {
				return cause
			}
		}
	case interface{ Unwrap() error }:
		return retryCause(u.Unwrap())
	}
	return nil
}
