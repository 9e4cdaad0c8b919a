// Package download turns one queued task into a finished file on disk.
//
// The Orchestrator checks availability and history, resolves a stream under
// the session coordinator's lock, fetches and decrypts it into a private
// temp directory and moves the result into place with a single rename.
package download

import (
	"fmt"
	"strings"

	"github.com/vmunix/streamgrab/internal/media"
	"github.com/vmunix/streamgrab/internal/segment"
)

// SkipPolicy decides what happens when the destination already exists.
type SkipPolicy int

const (
	// SkipDisabled never skips; an existing file is replaced.
	SkipDisabled SkipPolicy = iota
	// SkipExtensionIgnore skips when any file with the same stem exists,
	// whatever its extension.
	SkipExtensionIgnore
	// SkipFilename skips only on an exact path match.
	SkipFilename
	// SkipAppend never skips; the destination name is made unique instead.
	SkipAppend
)

var skipPolicyNames = map[SkipPolicy]string{
	SkipDisabled:        "disabled",
	SkipExtensionIgnore: "extension_ignore",
	SkipFilename:        "filename",
	SkipAppend:          "append",
}

func (p SkipPolicy) String() string {
	if name, ok := skipPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("SkipPolicy(%d)", int(p))
}

// ParseSkipPolicy parses a configured policy name.
func ParseSkipPolicy(s string) (SkipPolicy, error) {
	for p, name := range skipPolicyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return SkipDisabled, fmt.Errorf("%w: %q", ErrUnknownSkipPolicy, s)
}

// Task is one unit of work. Zero Quality means the configured default for
// the media kind; zero Source means a manual request.
type Task struct {
	Ref      media.Ref
	Name     string
	Template string
	Quality  media.Quality
	Skip     SkipPolicy
	Delay    bool
	Source   media.Source
}

// Reason explains a Result.
type Reason string

const (
	ReasonUnavailable Reason = "unavailable"
	ReasonDuplicate   Reason = "duplicate"
	ReasonExists      Reason = "exists"
	ReasonDownloaded  Reason = "downloaded"
	ReasonPartial     Reason = "partial"
)

// Result is the outcome of Process. Downloaded is false for skips, which
// are not errors.
type Result struct {
	Downloaded bool
	Path       string
	Reason     Reason
	Count      int // files written; members for collections
}

// ProgressFunc receives per-item fetch progress.
type ProgressFunc func(ref media.Ref, p segment.Progress)

// TaskOptions are the per-request knobs shared by every task built from
// one request.
type TaskOptions struct {
	Quality media.Quality
	Skip    SkipPolicy
	Delay   bool
}

// NewTask builds a task for ref. Name is filled in later from the catalog.
func NewTask(ref media.Ref, opts TaskOptions) Task {
	return Task{
		Ref:     ref,
		Quality: opts.Quality,
		Skip:    opts.Skip,
		Delay:   opts.Delay,
	}
}
