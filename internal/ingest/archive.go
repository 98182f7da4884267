package ingest

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"
)

// ignoredEntry matches archive members that are metadata noise rather
// than borrower documents.
func ignoredEntry(name string, size uint64) bool {
	base := path.Base(name)
	switch {
	case size == 0:
		return true
	case base == ".DS_Store":
		return true
	case strings.HasPrefix(name, "__MACOSX/"), strings.Contains(name, "/__MACOSX/"):
		return true
	case strings.HasPrefix(base, "._"): // AppleDouble resource forks
		return true
	}
	return false
}

// ExpandArchives flattens the incoming batch: zip archives are expanded
// recursively to leaf files (nested zips included), ignored entries are
// dropped silently, and unreadable archives are reported as rejected.
func ExpandArchives(files []IncomingFile) (leaves []IncomingFile, rejected []RejectedDoc) {
	for _, f := range files {
		if strings.ToLower(path.Ext(f.Name)) != ".zip" {
			leaves = append(leaves, f)
			continue
		}
		inner, rej := expandZip(f)
		leaves = append(leaves, inner...)
		rejected = append(rejected, rej...)
	}
	return leaves, rejected
}

func expandZip(f IncomingFile) (leaves []IncomingFile, rejected []RejectedDoc) {
	zr, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, []RejectedDoc{{Filename: f.Name, Reason: "unreadable zip archive"}}
	}

	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || ignoredEntry(entry.Name, entry.UncompressedSize64) {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			rejected = append(rejected, RejectedDoc{
				Filename: entry.Name, Reason: "unreadable archive entry"})
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			rejected = append(rejected, RejectedDoc{
				Filename: entry.Name, Reason: "unreadable archive entry"})
			continue
		}

		leaf := IncomingFile{Name: path.Base(entry.Name), Data: data}
		if strings.ToLower(path.Ext(leaf.Name)) == ".zip" {
			inner, rej := expandZip(leaf)
			leaves = append(leaves, inner...)
			rejected = append(rejected, rej...)
			continue
		}
		leaves = append(leaves, leaf)
	}
	return leaves, rejected
}
