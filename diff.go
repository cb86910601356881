// diff.go
//
// Manifest comparison between two parsed documents. Records are rendered
// as stable text lines, fingerprinted with farm hashes for cheap
// equality, and diffed line-wise with the Myers algorithm for a
// human-readable unified view.

package bomstore

import (
	"fmt"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// ManifestDiff summarizes how the path manifest of one document differs
// from another.
type ManifestDiff struct {
	// Added lists paths present only in the new document, Removed paths
	// present only in the old one, and Changed paths present in both
	// with differing metadata. All three are in the new (respectively
	// old) document's traversal order.
	Added   []string
	Removed []string
	Changed []string

	// Unified is the textual diff of the two rendered manifests, empty
	// when the manifests are identical.
	Unified string
}

// Empty reports whether the two manifests were identical.
func (d *ManifestDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// manifestLine renders one record in a fixed, diff-stable layout:
// mode, owner, size, mtime, checksum, path, and an optional link target.
func manifestLine(r *PathRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d/%d %d %d %08x %s",
		r.SymbolicMode, r.UserID, r.GroupID, r.Size, r.ModTime, r.Checksum, r.Path)
	if r.LinkName != "" {
		fmt.Fprintf(&b, " -> %s", r.LinkName)
	}
	if r.DecodeError != "" {
		fmt.Fprintf(&b, " [decode error: %s]", r.DecodeError)
	}
	return b.String()
}

// ManifestLines renders the document's path records as stable text
// lines, one per record, in traversal order.
func (d *Document) ManifestLines() []string {
	lines := make([]string, len(d.Paths))
	for i := range d.Paths {
		lines[i] = manifestLine(&d.Paths[i])
	}
	return lines
}

// Fingerprint returns a fast, non-cryptographic hash of the rendered
// manifest. Two documents with equal fingerprints are treated as having
// identical manifests by DiffDocuments.
func (d *Document) Fingerprint() uint64 {
	return farm.Hash64([]byte(strings.Join(d.ManifestLines(), "\n")))
}

// DiffDocuments compares the path manifests of two documents.
//
// Only Document.Paths participates; auxiliary sections and block
// enumerations never influence the result.
func DiffDocuments(oldDoc, newDoc *Document) *ManifestDiff {
	diff := &ManifestDiff{}

	oldLines := oldDoc.ManifestLines()
	newLines := newDoc.ManifestLines()
	oldText := joinManifest(oldLines)
	newText := joinManifest(newLines)
	if oldText == newText {
		return diff
	}

	// Per-path line hashes make membership and change checks cheap even
	// for manifests with hundreds of thousands of entries.
	oldByPath := hashByPath(oldDoc.Paths, oldLines)
	newByPath := hashByPath(newDoc.Paths, newLines)

	for i := range newDoc.Paths {
		p := newDoc.Paths[i].Path
		oldHash, existed := oldByPath[p]
		switch {
		case !existed:
			diff.Added = append(diff.Added, p)
		case oldHash != newByPath[p]:
			diff.Changed = append(diff.Changed, p)
		}
	}
	for i := range oldDoc.Paths {
		p := oldDoc.Paths[i].Path
		if _, exists := newByPath[p]; !exists {
			diff.Removed = append(diff.Removed, p)
		}
	}

	edits := myers.ComputeEdits(span.URIFromPath("manifest"), oldText, newText)
	diff.Unified = fmt.Sprint(gotextdiff.ToUnified("old/manifest", "new/manifest", oldText, edits))

	return diff
}

func joinManifest(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func hashByPath(records []PathRecord, lines []string) map[string]uint64 {
	m := make(map[string]uint64, len(records))
	for i := range records {
		// First occurrence wins, mirroring duplicate-name policy elsewhere.
		if _, ok := m[records[i].Path]; !ok {
			m[records[i].Path] = farm.Hash64([]byte(lines[i]))
		}
	}
	return m
}
