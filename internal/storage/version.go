package storage

import (
	"path"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

// NewVersionTag derives a sortable YYYYMMDDHHMMSS tag from the upload
// time. Two uploads of identical bytes still get distinct tags.
func NewVersionTag(t time.Time) string {
	return t.UTC().Format(versionLayout)
}

// ObjectKey builds the storage key firmware/{device}/{version}_{name}.
func ObjectKey(deviceID, version, filename string) string {
	return "firmware/" + deviceID + "/" + version + "_" + SafeFilename(filename)
}

// ParseObjectName splits a stored object's base name back into its
// version tag and original filename. Names without a tag prefix fall
// back to the bare name (minus extension) as the version, which keeps
// hand-placed binaries servable.
func ParseObjectName(key string) (version, filename string) {
	name := path.Base(key)
	if idx := strings.Index(name, "_"); idx > 0 {
		return name[:idx], name[idx+1:]
	}
	return strings.TrimSuffix(name, path.Ext(name)), name
}

// SafeFilename strips any path components from an uploaded name.
func SafeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "firmware.bin"
	}
	return name
}
