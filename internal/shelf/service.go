package shelf

// DefaultThumbnailOffsetSec is how far into a video the poster frame is taken.
const DefaultThumbnailOffsetSec = 3.0

// Options tunes a ShelfService.
type Options struct {
	// ThumbnailOffsetSec is the poster capture offset; 0 means the default.
	ThumbnailOffsetSec float64

	// HashFingerprints adds a content hash to every fingerprint.
	HashFingerprints bool

	// Ignore skips matching entries during directory import.
	Ignore IgnoreMatcher
}

// ShelfService is the orchestration layer over storage, file access,
// thumbnails and the session source cache. It implements importing,
// relinking, progress tracking and playback source resolution.
type ShelfService struct {
	database    Database
	blobs       BlobStore
	access      FileAccess
	thumbnailer Thumbnailer
	cache       *SourceCache
	logger      Logger
	clock       Clock
	idgen       IDGenerator

	capability    Capability
	fingerprinter Fingerprinter
	thumbOffset   float64
	ignore        IgnoreMatcher
}

// NewShelfService creates a new ShelfService with the provided dependencies.
// A nil thumbnailer disables poster capture; a nil cache, logger, clock or
// idgen is replaced with a working default.
func NewShelfService(database Database, blobs BlobStore, access FileAccess, thumbnailer Thumbnailer, cache *SourceCache, logger Logger, clock Clock, idgen IDGenerator, opts Options) *ShelfService {
	if cache == nil {
		cache = NewSourceCache()
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	offset := opts.ThumbnailOffsetSec
	if offset <= 0 {
		offset = DefaultThumbnailOffsetSec
	}

	return &ShelfService{
		database:      database,
		blobs:         blobs,
		access:        access,
		thumbnailer:   thumbnailer,
		cache:         cache,
		logger:        logger,
		clock:         clock,
		idgen:         idgen,
		capability:    ProbeCapability(access),
		fingerprinter: Fingerprinter{Hash: opts.HashFingerprints},
		thumbOffset:   offset,
		ignore:        opts.Ignore,
	}
}

// Capability reports what the configured file access supports.
func (s *ShelfService) Capability() Capability {
	return s.capability
}

// Cache returns the session source cache.
func (s *ShelfService) Cache() *SourceCache {
	return s.cache
}

// Access returns the file access used to open raw paths.
func (s *ShelfService) Access() FileAccess {
	return s.access
}

// handleFor returns the handle to store for f, or "" when handles
// cannot be persisted by the configured access.
func (s *ShelfService) handleFor(f FileRef) string {
	if !s.capability.PersistentHandles {
		return ""
	}
	return f.Handle()
}
