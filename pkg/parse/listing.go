package parse

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/index-mirror/pkg/models"
	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

// parentDirectoryText is the anchor text Apache and nginx use for the ".." row
const parentDirectoryText = "Parent Directory"

// ignoredTargets are hrefs that point back at the listing itself or above it
var ignoredTargets = map[string]struct{}{
	".":   {},
	"./":  {},
	"/":   {},
	"..":  {},
	"../": {},
}

// ParseListing extracts the files and subdirectories linked from an autoindex page.
// Links are resolved against pageURL (treated as a directory). A resolved path ending
// in "/" is a directory, anything else is a file. Both lists are de-duplicated in document order.
// Malformed HTML never fails; errors come only from an unusable pageURL or a failed read.
func ParseListing(body io.Reader, pageURL string) (models.ListingResult, error) {
	var result models.ListingResult

	base, err := url.Parse(EnsureTrailingSlash(pageURL))
	if err != nil {
		return result, utils.WrapErrorf(utils.ErrParsing, "invalid listing URL '%s': %v", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return result, utils.WrapErrorf(utils.ErrParsing, "failed to parse listing HTML for %s: %v", pageURL, err)
	}

	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if skipTarget(href, s.Text()) {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		canonical := NormalizeURL(resolved)
		if _, dup := seen[canonical]; dup {
			return
		}
		seen[canonical] = struct{}{}

		if strings.HasSuffix(resolved.Path, "/") {
			result.Directories = append(result.Directories, canonical)
		} else {
			result.Files = append(result.Files, canonical)
		}
	})

	return result, nil
}

// skipTarget reports whether an anchor is navigation rather than a listing entry
func skipTarget(href, text string) bool {
	if href == "" {
		return true
	}
	if _, ok := ignoredTargets[href]; ok {
		return true
	}
	if strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
		return true
	}
	return strings.Contains(text, parentDirectoryText)
}
