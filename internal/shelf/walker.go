package shelf

import (
	"context"
	"fmt"
	"path"
	"sort"
)

// DirectoryListing holds the immediate children of a directory,
// each list in natural order.
type DirectoryListing struct {
	Files       []Entry
	Directories []Entry
}

// ListDirectory reads the immediate children of dir. relDir is dir's path
// relative to the import root ("" for the root) and is only used to evaluate
// ignore patterns. Access errors are returned unchanged.
func ListDirectory(ctx context.Context, dir DirectoryRef, relDir string, ignore IgnoreMatcher) (*DirectoryListing, error) {
	entries, err := dir.Entries(ctx)
	if err != nil {
		return nil, err
	}

	listing := &DirectoryListing{}
	for _, e := range entries {
		if ignore != nil && ignore.Match(path.Join(relDir, e.Name)) {
			continue
		}
		switch e.Kind {
		case KindFile:
			listing.Files = append(listing.Files, e)
		case KindDirectory:
			listing.Directories = append(listing.Directories, e)
		default:
			return nil, fmt.Errorf("unknown entry kind %d for %s", e.Kind, e.Name)
		}
	}

	sortEntries(listing.Files)
	sortEntries(listing.Directories)
	return listing, nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return naturalLess(entries[i].Name, entries[j].Name)
	})
}

// videoEntries returns the entries classified as video files, preserving order.
func videoEntries(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if IsVideoFile(e.Name) {
			out = append(out, e)
		}
	}
	return out
}
