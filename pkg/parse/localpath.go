package parse

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

// ToLocalPath maps a remote file URL onto a path under outputRoot, mirroring the
// server's directory structure. Traversal sequences are stripped textually before
// the join, and the joined result is checked to still sit below outputRoot.
func ToLocalPath(fileURL, outputRoot string) (string, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return "", utils.WrapErrorf(utils.ErrParsing, "invalid file URL '%s': %v", fileURL, err)
	}

	rel := sanitizeRelPath(u.EscapedPath())
	if rel == "" {
		return "", utils.WrapErrorf(utils.ErrEmptyPath, "%s", fileURL)
	}

	target := filepath.Join(outputRoot, filepath.FromSlash(rel))

	absRoot, err := filepath.Abs(outputRoot)
	if err != nil {
		return "", utils.WrapErrorf(utils.ErrFilesystem, "resolve output root '%s': %v", outputRoot, err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", utils.WrapErrorf(utils.ErrFilesystem, "resolve target '%s': %v", target, err)
	}
	within, err := filepath.Rel(absRoot, absTarget)
	if err != nil || within == "." || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", utils.WrapErrorf(utils.ErrPathTraversal, "%s -> %s", fileURL, target)
	}

	return target, nil
}

// sanitizeRelPath turns an escaped URL path into a relative slash path with no traversal.
// Segments are unescaped one by one, so an encoded "/" stays inside its segment.
func sanitizeRelPath(p string) string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")

	// Removing one occurrence can create another ("...//" -> "./"), so loop to a fixed point
	for {
		next := strings.ReplaceAll(p, "../", "")
		next = strings.ReplaceAll(next, "./", "")
		if next == p {
			break
		}
		p = next
	}

	segments := strings.Split(p, "/")
	kept := segments[:0]
	for _, seg := range segments {
		if decoded, err := url.PathUnescape(seg); err == nil {
			seg = decoded
		}
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		// Decoded separators must not split the segment or smuggle traversal back in
		seg = strings.NewReplacer("/", "_", `\`, "_").Replace(seg)
		kept = append(kept, seg)
	}
	return strings.Join(kept, "/")
}
