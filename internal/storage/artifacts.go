package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dotcommander/contentorc/internal/core"
)

// Naming controls how per-request artifact directories are named.
type Naming string

const (
	// NamingID uses the request ID.
	NamingID Naming = "id"
	// NamingTimestamp uses a minute timestamp plus a short ID.
	NamingTimestamp Naming = "timestamp"
	// NamingDescriptive adds a slug of the topic.
	NamingDescriptive Naming = "descriptive"
)

// ParseNaming accepts the flag spelling of a Naming.
func ParseNaming(s string) (Naming, error) {
	switch n := Naming(strings.ToLower(s)); n {
	case "", NamingID:
		return NamingID, nil
	case NamingTimestamp, NamingDescriptive:
		return n, nil
	default:
		return "", fmt.Errorf("unknown artifact naming %q", s)
	}
}

// Record is the JSON form of a result. Errors are rendered as strings since
// PipelineResult keeps them out of its own encoding.
type Record struct {
	*core.PipelineResult
	ErrorMessages []string `json:"errors,omitempty"`
}

func NewRecord(res *core.PipelineResult) Record {
	return Record{PipelineResult: res, ErrorMessages: res.ErrorMessages()}
}

// Artifacts writes compose results into a Storage.
type Artifacts struct {
	store  Storage
	naming Naming
	now    func() time.Time
}

func NewArtifacts(store Storage, naming Naming) *Artifacts {
	return &Artifacts{store: store, naming: naming, now: time.Now}
}

// Dir returns the relative directory a request's artifacts go to.
func (a *Artifacts) Dir(req core.ContentRequest) string {
	short := req.ID
	if len(short) > 8 {
		short = short[:8]
	}
	stamp := a.now().Format("2006-01-02_1504")

	switch a.naming {
	case NamingTimestamp:
		return path.Join("runs", stamp+"_"+short)
	case NamingDescriptive:
		return path.Join("runs", stamp+"_"+slug(req.Topic, 30)+"_"+short)
	default:
		return path.Join("runs", req.ID)
	}
}

// Write stores the content as markdown next to the JSON record. Failed
// results get only the record. It returns the directory used.
func (a *Artifacts) Write(ctx context.Context, req core.ContentRequest, res *core.PipelineResult) (string, error) {
	dir := a.Dir(req)

	record, err := json.MarshalIndent(NewRecord(res), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	if err := a.store.Save(ctx, path.Join(dir, "result.json"), record); err != nil {
		return "", err
	}
	if res.Success && res.Content != "" {
		if err := a.store.Save(ctx, path.Join(dir, "content.md"), []byte(res.Content)); err != nil {
			return "", err
		}
	}
	if err := a.store.Save(ctx, path.Join(dir, "README.md"), metadata(req, res, a.now())); err != nil {
		return "", err
	}
	return dir, nil
}

func metadata(req core.ContentRequest, res *core.PipelineResult, at time.Time) []byte {
	var b strings.Builder
	b.WriteString("# Run metadata\n\n")
	fmt.Fprintf(&b, "**Request ID**: %s\n", req.ID)
	fmt.Fprintf(&b, "**Date**: %s\n", at.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Topic**: %s\n", req.Topic)
	fmt.Fprintf(&b, "**Content type**: %s\n", req.ContentType)
	fmt.Fprintf(&b, "**Strategy**: %s\n", res.Strategy)
	fmt.Fprintf(&b, "**Success**: %t\n", res.Success)
	if res.Success {
		fmt.Fprintf(&b, "**Quality**: %.2f\n", res.QualityScore)
	}
	return []byte(b.String())
}

// slug turns s into a lowercase filename component of at most maxLen bytes.
func slug(s string, maxLen int) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxLen {
		out = strings.TrimRight(out[:maxLen], "-")
	}
	if out == "" {
		return "output"
	}
	return out
}
