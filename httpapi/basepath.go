package httpapi

import (
	"path"
	"strings"
)

// normalizeBasePath returns value as "/segment[/segment...]" or "" for root.
func normalizeBasePath(value string) string {
	trimmed := strings.Trim(strings.TrimSpace(value), "/")
	if trimmed == "" {
		return ""
	}
	return path.Clean("/" + trimmed)
}

// buildBaseHref is the <base href> for the index page, always ending in a
// slash so relative asset and API URLs resolve under the mount point.
func buildBaseHref(baseURL, basePath string) string {
	href := strings.TrimRight(strings.TrimSpace(baseURL), "/") + normalizeBasePath(basePath)
	if href == "" {
		return ""
	}
	return href + "/"
}
