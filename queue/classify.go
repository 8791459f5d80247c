// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package queue

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"regexp"
	"strings"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/gleanit/core"
)

// ErrorKind tells the dispatcher whether a failed job may be retried.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindPermanent
)

func (k ErrorKind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// Classifier maps a processor error to an ErrorKind.
type Classifier interface {
	Classify(err error) ErrorKind
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) ErrorKind

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) ErrorKind {
	return f(err)
}

// DefaultClassifier is the classifier a Dispatcher uses unless configured otherwise.
var DefaultClassifier Classifier = ClassifierFunc(Classify)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// MarkPermanent wraps err so Classify reports it as permanent regardless of
// its message. A nil err stays nil.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

var (
	transientPatterns = []*regexp.Regexp{
		regexp.MustCompile(`connection refused`),
		regexp.MustCompile(`connection reset`),
		regexp.MustCompile(`econnreset|econnrefused|etimedout|eai_again`),
		regexp.MustCompile(`no such host`),
		regexp.MustCompile(`timeout|timed out`),
		regexp.MustCompile(`rate limit|too many requests`),
		regexp.MustCompile(`try again|temporarily unavailable`),
		regexp.MustCompile(`database is (busy|locked)|transaction conflict`),
		regexp.MustCompile(`\b(429|502|503|504)\b`),
	}

	permanentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`permission denied|access denied`),
		regexp.MustCompile(`no space left|disk full|quota exceeded`),
		regexp.MustCompile(`no such file|file not found|not found`),
		regexp.MustCompile(`corrupt|malformed|invalid pdf`),
		regexp.MustCompile(`unauthorized|forbidden`),
		regexp.MustCompile(`\b(400|401|403|404|410)\b`),
	}
)

// Classify decides whether err is worth retrying. Typed checks run first,
// then the message is matched against the transient patterns and then the
// permanent ones. Anything unrecognized is treated as transient, leaving the
// retry ceiling to stop it.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindTransient
	}
	if kind, ok := classifyTyped(err); ok {
		return kind
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if p.MatchString(msg) {
			return KindTransient
		}
	}
	for _, p := range permanentPatterns {
		if p.MatchString(msg) {
			return KindPermanent
		}
	}
	return KindTransient
}

func classifyTyped(err error) (ErrorKind, bool) {
	var perm *permanentError
	if errors.As(err, &perm) {
		return KindPermanent, true
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, badger.ErrConflict),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, syscall.EPIPE):
		return KindTransient, true
	case errors.Is(err, fs.ErrPermission),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, core.ErrInvalidJobData),
		errors.Is(err, core.ErrJobDataMismatch),
		errors.Is(err, core.ErrUnknownJobType),
		errors.Is(err, core.ErrEmptySource):
		return KindPermanent, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindTransient, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient, true
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		return classifyStatus(coder.StatusCode())
	}
	return KindTransient, false
}

func classifyStatus(code int) (ErrorKind, bool) {
	switch {
	case code == 408 || code == 429:
		return KindTransient, true
	case code >= 500:
		return KindTransient, true
	case code >= 400:
		return KindPermanent, true
	}
	return KindTransient, false
}
