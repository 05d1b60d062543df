package shelf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode"

	"shelf-go/internal/model"
)

// ImportedCourseTitle is the title given to courses built from a flat selection.
const ImportedCourseTitle = "Imported Course"

// ImportOptions controls an import.
type ImportOptions struct {
	GenerateThumbnails bool

	// Ignore replaces the service's ignore matcher for a directory import.
	Ignore IgnoreMatcher
}

// ImportSummary describes what an import created.
type ImportSummary struct {
	Course  *model.Course
	Modules []*model.Module
	Videos  []*model.Video
}

// courseBuild accumulates the records of one import before they are stored.
type courseBuild struct {
	course  *model.Course
	modules []*model.Module
	videos  []*model.Video
	sources map[string]FileRef
	blobs   []string
}

func (s *ShelfService) newCourseBuild(title string) *courseBuild {
	now := s.clock.Now()
	return &courseBuild{
		course: &model.Course{
			ID:        s.idgen.New(),
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		},
		sources: make(map[string]FileRef),
	}
}

func (s *ShelfService) addModule(b *courseBuild, title string) *model.Module {
	m := &model.Module{
		ID:       s.idgen.New(),
		CourseID: b.course.ID,
		Title:    title,
		Order:    len(b.modules),
	}
	b.modules = append(b.modules, m)
	return m
}

// addVideo fingerprints f, optionally captures its poster, and appends the
// resulting video to the build.
func (s *ShelfService) addVideo(ctx context.Context, b *courseBuild, moduleID string, order int, f FileRef, relPath, title string, opts ImportOptions) error {
	if err := checkAborted(ctx); err != nil {
		return err
	}
	fp, err := s.fingerprinter.Of(ctx, f)
	if err != nil {
		return fmt.Errorf("fingerprinting %s: %w", f.Name(), err)
	}
	if err := checkAborted(ctx); err != nil {
		return err
	}

	now := s.clock.Now()
	v := &model.Video{
		ID:           s.idgen.New(),
		CourseID:     b.course.ID,
		ModuleID:     moduleID,
		Title:        title,
		Order:        order,
		Fingerprint:  fp,
		Handle:       s.handleFor(f),
		RelativePath: relPath,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if opts.GenerateThumbnails && s.thumbnailer != nil {
		if err := s.capturePoster(ctx, b, v, f); err != nil {
			return err
		}
	}

	b.videos = append(b.videos, v)
	b.sources[v.ID] = f
	return nil
}

// capturePoster stores a poster for v. Capture failures only cost the poster;
// a cancelled context or a blob store fault aborts the import.
func (s *ShelfService) capturePoster(ctx context.Context, b *courseBuild, v *model.Video, f FileRef) error {
	thumb, err := s.thumbnailer.Capture(ctx, f, s.thumbOffset)
	if err != nil {
		if abortErr := checkAborted(ctx); abortErr != nil {
			return abortErr
		}
		s.logger.Warn("thumbnail capture failed", "file", f.Name(), "error", err)
		return nil
	}
	v.DurationSec = thumb.DurationSec
	if len(thumb.Image) == 0 {
		return nil
	}

	key, err := s.blobs.Put(bytes.NewReader(thumb.Image), int64(len(thumb.Image)))
	if err != nil {
		return fmt.Errorf("storing poster for %s: %w", f.Name(), err)
	}
	b.blobs = append(b.blobs, key)
	v.PosterBlobKey = key
	if b.course.CoverBlobKey == "" {
		b.course.CoverBlobKey = key
	}
	return nil
}

// commit stores the build atomically and caches its sources for the session.
func (s *ShelfService) commit(ctx context.Context, b *courseBuild) (*ImportSummary, error) {
	if len(b.videos) == 0 {
		return nil, ErrNothingToImport
	}
	if err := checkAborted(ctx); err != nil {
		return nil, err
	}
	if err := s.database.CreateCourseTree(b.course, b.modules, b.videos); err != nil {
		return nil, fmt.Errorf("storing course: %w", err)
	}
	s.cache.PutAll(b.sources)

	s.logger.Info("course imported",
		"course_id", b.course.ID,
		"title", b.course.Title,
		"modules", len(b.modules),
		"videos", len(b.videos))

	return &ImportSummary{Course: b.course, Modules: b.modules, Videos: b.videos}, nil
}

// discardBlobs removes posters stored by a failed import unless some
// existing record already shares them.
func (s *ShelfService) discardBlobs(keys []string) {
	for _, key := range keys {
		referenced, err := s.database.BlobKeyReferenced(key)
		if err != nil {
			s.logger.Warn("checking poster reference", "key", key, "error", err)
			continue
		}
		if referenced {
			continue
		}
		if err := s.blobs.Delete(key); err != nil {
			s.logger.Warn("deleting poster", "key", key, "error", err)
		}
	}
}

// ImportDirectory builds a course from dir. Each subdirectory becomes a
// module holding its video files; when there are no subdirectories the
// directory's own video files become root-level videos. Nothing is stored
// if the import fails or ctx is cancelled.
func (s *ShelfService) ImportDirectory(ctx context.Context, dir DirectoryRef, opts ImportOptions) (summary *ImportSummary, err error) {
	if err := checkAborted(ctx); err != nil {
		return nil, err
	}

	ignore := s.ignore
	if opts.Ignore != nil {
		ignore = opts.Ignore
	}

	listing, err := ListDirectory(ctx, dir, "", ignore)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir.Name(), err)
	}

	b := s.newCourseBuild(HumanizeName(dir.Name()))
	defer func() {
		if err != nil {
			s.discardBlobs(b.blobs)
			s.logImportFailure(dir.Name(), err)
		}
	}()

	if len(listing.Directories) > 0 {
		for _, d := range listing.Directories {
			if err := checkAborted(ctx); err != nil {
				return nil, err
			}
			module := s.addModule(b, HumanizeName(d.Name))

			sub, err := ListDirectory(ctx, d.Dir, d.Name, ignore)
			if err != nil {
				return nil, fmt.Errorf("listing %s: %w", d.Name, err)
			}
			for i, f := range videoEntries(sub.Files) {
				rel := path.Join(d.Name, f.Name)
				if err := s.addVideo(ctx, b, module.ID, i, f.File, rel, HumanizeName(f.Name), opts); err != nil {
					return nil, err
				}
			}
		}
	} else {
		for i, f := range videoEntries(listing.Files) {
			if err := s.addVideo(ctx, b, "", i, f.File, f.Name, HumanizeName(f.Name), opts); err != nil {
				return nil, err
			}
		}
	}

	return s.commit(ctx, b)
}

func (s *ShelfService) logImportFailure(source string, err error) {
	if errors.Is(err, ErrAborted) || errors.Is(err, ErrNothingToImport) {
		s.logger.Info("import stopped", "source", source, "reason", err)
		return
	}
	s.logger.Error("import failed", "source", source, "error", err)
}

// moduleSeparators are the filename separators that may introduce a module
// name, e.g. "Basics - Intro.mp4".
var moduleSeparators = []string{" - ", " — ", "--", "__"}

// titleSeparator joins nested path segments into a video title.
const titleSeparator = " • "

type flatVideo struct {
	file  FileRef
	rel   string
	title string
}

type flatModule struct {
	title  string
	videos []flatVideo
}

// flatPlan groups a flat selection into modules and root-level videos.
type flatPlan struct {
	modules []*flatModule
	byKey   map[string]*flatModule
	root    []flatVideo
}

// module returns the module named by raw, a path segment or an inferred
// filename prefix, creating it on first use. Names are compared
// case-insensitively before humanizing, so distinct directories never merge.
func (p *flatPlan) module(raw, title string) *flatModule {
	key := strings.ToLower(strings.TrimSpace(raw))
	if m, ok := p.byKey[key]; ok {
		return m
	}
	m := &flatModule{title: title}
	p.byKey[key] = m
	p.modules = append(p.modules, m)
	return m
}

// ImportFiles builds a course from a flat selection of files. A file whose
// relative path has a leading directory is grouped into a module named after
// it. Otherwise a module may be inferred from a filename prefix such as
// "Basics - Intro.mp4". Remaining files become root-level videos.
func (s *ShelfService) ImportFiles(ctx context.Context, files []SelectedFile, opts ImportOptions) (summary *ImportSummary, err error) {
	if err := checkAborted(ctx); err != nil {
		return nil, err
	}

	var selected []flatVideo
	for _, f := range files {
		if !IsVideoFile(f.File.Name()) {
			continue
		}
		selected = append(selected, flatVideo{file: f.File, rel: cleanRelativePath(f.RelativePath)})
	}
	if len(selected) == 0 {
		return nil, ErrNothingToImport
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return naturalLess(selected[i].sortKey(), selected[j].sortKey())
	})

	plan := &flatPlan{byKey: make(map[string]*flatModule)}
	var unplaced []flatVideo
	for _, v := range selected {
		segments := splitPath(v.rel)
		if len(segments) < 2 {
			unplaced = append(unplaced, v)
			continue
		}
		parts := make([]string, 0, len(segments)-1)
		for _, seg := range segments[1 : len(segments)-1] {
			parts = append(parts, HumanizeName(seg))
		}
		parts = append(parts, HumanizeName(v.file.Name()))
		v.title = strings.Join(parts, titleSeparator)

		m := plan.module(segments[0], HumanizeName(segments[0]))
		m.videos = append(m.videos, v)
	}
	for _, v := range unplaced {
		v.title = HumanizeName(v.file.Name())
		if name, ok := inferModuleName(v.file.Name()); ok {
			m := plan.module(name, humanizeWords(name))
			m.videos = append(m.videos, v)
			continue
		}
		plan.root = append(plan.root, v)
	}

	b := s.newCourseBuild(ImportedCourseTitle)
	defer func() {
		if err != nil {
			s.discardBlobs(b.blobs)
			s.logImportFailure("file selection", err)
		}
	}()

	for _, fm := range plan.modules {
		module := s.addModule(b, fm.title)
		sortFlatVideos(fm.videos)
		for i, v := range fm.videos {
			if err := s.addVideo(ctx, b, module.ID, i, v.file, v.rel, v.title, opts); err != nil {
				return nil, err
			}
		}
	}
	sortFlatVideos(plan.root)
	for i, v := range plan.root {
		if err := s.addVideo(ctx, b, "", i, v.file, v.rel, v.title, opts); err != nil {
			return nil, err
		}
	}

	return s.commit(ctx, b)
}

func (v flatVideo) sortKey() string {
	if v.rel != "" {
		return v.rel
	}
	return v.file.Name()
}

func sortFlatVideos(videos []flatVideo) {
	sort.SliceStable(videos, func(i, j int) bool {
		return naturalLess(videos[i].sortKey(), videos[j].sortKey())
	})
}

func cleanRelativePath(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = strings.TrimPrefix(rel, "./")
	return strings.Trim(rel, "/")
}

func splitPath(rel string) []string {
	var out []string
	for _, seg := range strings.Split(rel, "/") {
		if seg != "" && seg != "." {
			out = append(out, seg)
		}
	}
	return out
}

// inferModuleName returns the text before the earliest module separator in
// name, provided it contains a letter.
func inferModuleName(name string) (string, bool) {
	cut := -1
	for _, sep := range moduleSeparators {
		if i := strings.Index(name, sep); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut <= 0 {
		return "", false
	}
	prefix := strings.TrimSpace(name[:cut])
	if !strings.ContainsFunc(prefix, unicode.IsLetter) {
		return "", false
	}
	return prefix, true
}
