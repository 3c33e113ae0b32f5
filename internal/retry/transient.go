package retry

import (
	"errors"
	"net"
	"regexp"
	"strings"
	"syscall"
)

// Status codes and phrases worth retrying. The position rules keep
// unrelated numbers ("line 502") from classifying as transient.
var (
	statusAtStart    = regexp.MustCompile(`^\s*\(?(?:502|503|504|429)\b`)
	statusAfterToken = regexp.MustCompile(`\b(?:http|status(?:\s+code)?)\s*[:=]?\s*(?:502|503|504|429)\b`)
	statusWithReason = regexp.MustCompile(`\b(?:502\s+bad\s+gateway|503\s+service\s+unavailable|504\s+gateway\s+time-?out|429\s+too\s+many\s+requests)\b`)
	networkPhrase    = regexp.MustCompile(`\bnetwork\b.{0,40}?\b(?:error|fail(?:ed|ure)?|unavailable|timeout)`)
	connectionPhrase = regexp.MustCompile(`\bconnection\b.{0,40}?\b(?:reset|refused|timed?\s?out)`)
)

var transientErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ETIMEDOUT,
	syscall.EPIPE,
	syscall.ENETUNREACH,
	syscall.EHOSTUNREACH,
}

// Transient reports whether err looks like a temporary network condition.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		for _, t := range transientErrnos {
			if errno == t {
				return true
			}
		}
	}

	// Resolver failures: host not found and try-again both retry.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return transientMessage(err.Error())
}

// transientMessage is the fallback for errors that crossed a process or
// serialization boundary and kept only their text.
func transientMessage(msg string) bool {
	msg = strings.ToLower(msg)

	if strings.Contains(msg, "timeout") {
		return true
	}
	return statusAtStart.MatchString(msg) ||
		statusAfterToken.MatchString(msg) ||
		statusWithReason.MatchString(msg) ||
		networkPhrase.MatchString(msg) ||
		connectionPhrase.MatchString(msg)
}
