package recovery

import (
	"regexp"

	"nixmate/internal/operation"
)

// Patterns are matched against the failure message, the tool output tail
// and the wrapped error text, in this order of precedence.
var (
	diskSpacePattern = regexp.MustCompile(`(?i)no space left on device|disk full|disk quota exceeded|not enough free disk space|\bENOSPC\b`)

	networkPattern = regexp.MustCompile(`(?i)could not resolve host|unable to download|unable to connect|failed to connect|connection (refused|reset|timed out)|network is unreachable|temporary failure in name resolution|name or service not known|couldn't resolve|SSL connect error|HTTP error 50[0-9]`)

	permissionPattern = regexp.MustCompile(`(?i)permission denied|operation not permitted|\bEACCES\b|\bEPERM\b|you don't have permission|requires root|cannot open connection to remote store 'daemon'`)
)

// Classify returns the recovery category of f. Timeouts and cancellations
// keep their category; everything else is matched by text.
func Classify(f *operation.ExecutionFailure) operation.Category {
	if f == nil {
		return operation.CategoryUnknown
	}
	switch f.Category {
	case operation.CategoryTimeout, operation.CategoryCancelled:
		return f.Category
	}
	return ClassifyText(f.Text())
}

// ClassifyText classifies free-form error text.
func ClassifyText(text string) operation.Category {
	switch {
	case diskSpacePattern.MatchString(text):
		return operation.CategoryDiskSpace
	case networkPattern.MatchString(text):
		return operation.CategoryNetwork
	case permissionPattern.MatchString(text):
		return operation.CategoryPermission
	default:
		return operation.CategoryUnknown
	}
}
