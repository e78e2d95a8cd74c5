// Package partial manages the on-disk marker files that make interrupted
// transfers resumable.
//
// A transfer in progress writes into a sibling of its target path carrying
// the ".part" suffix. The marker's byte length is the resume offset: an
// interrupted transfer leaves the marker untouched, and the next attempt
// picks up exactly where the last flushed byte ended. A completed download
// is renamed into place; a completed upload removes its marker.
package partial

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Suffix is appended to a target path to derive its marker path.
const Suffix = ".part"

// Path returns the marker path for localPath. The transform is
// deterministic so repeated attempts find the same marker.
func Path(localPath string) string {
	return localPath + Suffix
}

// Locate returns the resume offset and marker path for localPath. The
// offset is the marker's current byte length, or zero when no marker
// exists. Calling Locate repeatedly with no new data yields the same
// offset.
func Locate(localPath string) (uint64, string) {
	partPath := Path(localPath)

	info, err := os.Stat(partPath)
	if err != nil {
		return 0, partPath
	}

	offset := uint64(info.Size())
	logrus.WithFields(logrus.Fields{
		"function":  "Locate",
		"part_path": partPath,
		"offset":    offset,
	}).Debug("Found partial file, resuming transfer")

	return offset, partPath
}

// OpenAt opens the marker file for writing, creating it if missing, and
// positions it at offset. Both the GET and PUT paths append durably
// applied bytes through the returned handle.
func OpenAt(partPath string, offset uint64) (*os.File, error) {
	f, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Finalize atomically renames the completed marker into its final place.
// Callers must only finalize after the transferred byte count exactly
// equals the expected total.
func Finalize(partPath, localPath string) error {
	logrus.WithFields(logrus.Fields{
		"function":   "Finalize",
		"part_path":  partPath,
		"local_path": localPath,
	}).Debug("Renaming partial file into place")
	return os.Rename(partPath, localPath)
}

// Remove deletes the marker after a fully acknowledged upload. A missing
// marker is not an error.
func Remove(partPath string) {
	if err := os.Remove(partPath); err != nil && !os.IsNotExist(err) {
		logrus.WithFields(logrus.Fields{
			"function":  "Remove",
			"part_path": partPath,
			"error":     err.Error(),
		}).Warn("Failed to remove partial file")
	}
}
