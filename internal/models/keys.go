package models

import (
	"path"
	"strings"
)

// Blob key prefixes. Everything under them is transient and swept.
const (
	UploadPrefix   = "uploads/"
	ArtifactPrefix = "gifs/"
)

// SourceKey is where an acquired source named name is stored.
func SourceKey(name string) string {
	return UploadPrefix + name
}

// Stem is name without its extension.
func Stem(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// ArtifactKey is where the GIF rendered from source name is stored.
func ArtifactKey(name string) string {
	return ArtifactPrefix + Stem(name) + ".gif"
}

// PreviewKey is where the preview image of source name is stored.
func PreviewKey(name string) string {
	return ArtifactPrefix + Stem(name) + ".preview.png"
}
