// Package exectest provides a scripted exec.Executor for unit tests.
package exectest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carina-io/remotefs/utils/exec"
)

var _ exec.Executor = &Executor{}

// ExitError mimics a failed process, it satisfies the ExitCode() contract of *exec.ExitError.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) ExitCode() int {
	return e.Code
}

// Result is the canned outcome of one command invocation.
type Result struct {
	Output string
	Err    error
}

// Failure is a Result exiting with status 1.
func Failure(output string) Result {
	return Result{Output: output, Err: &ExitError{Code: 1}}
}

type rule struct {
	prefix  string
	results []Result
}

// Executor matches the joined command line against registered prefixes.
// The longest matching prefix wins; its results are consumed in order and the
// last one repeats. Unmatched commands succeed with empty output.
type Executor struct {
	mu       sync.Mutex
	rules    []*rule
	Commands []string
}

func New() *Executor {
	return &Executor{}
}

// On registers the results returned for commands starting with prefix.
func (e *Executor) On(prefix string, results ...Result) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(results) == 0 {
		results = []Result{{}}
	}
	for _, r := range e.rules {
		if r.prefix == prefix {
			r.results = results
			return e
		}
	}
	e.rules = append(e.rules, &rule{prefix: prefix, results: results})
	return e
}

// Ran reports whether a command starting with prefix was executed.
func (e *Executor) Ran(prefix string) bool {
	return e.Count(prefix) > 0
}

// Count returns the number of executed commands starting with prefix.
func (e *Executor) Count(prefix string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.Commands {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Matching returns the executed commands starting with prefix, in order.
func (e *Executor) Matching(prefix string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, c := range e.Commands {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (e *Executor) run(command string, arg ...string) (string, error) {
	line := strings.TrimSpace(command + " " + strings.Join(arg, " "))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.Commands = append(e.Commands, line)

	var match *rule
	for _, r := range e.rules {
		if strings.HasPrefix(line, r.prefix) && (match == nil || len(r.prefix) > len(match.prefix)) {
			match = r
		}
	}
	if match == nil {
		return "", nil
	}
	res := match.results[0]
	if len(match.results) > 1 {
		match.results = match.results[1:]
	}
	return res.Output, res.Err
}

func (e *Executor) ExecuteCommand(command string, arg ...string) error {
	_, err := e.run(command, arg...)
	return err
}

func (e *Executor) ExecuteCommandWithEnv(_ []string, command string, arg ...string) error {
	_, err := e.run(command, arg...)
	return err
}

func (e *Executor) ExecuteCommandWithOutput(command string, arg ...string) (string, error) {
	return e.run(command, arg...)
}

func (e *Executor) ExecuteCommandWithCombinedOutput(command string, arg ...string) (string, error) {
	return e.run(command, arg...)
}

func (e *Executor) ExecuteCommandWithTimeout(_ time.Duration, command string, arg ...string) (string, error) {
	return e.run(command, arg...)
}
