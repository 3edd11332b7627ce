package internal

import "sort"

// ZiPatchCommandCounts tallies the commands of a patch
type ZiPatchCommandCounts struct {
	TotalCommands      uint32
	AddDirectories     uint32
	DeleteDirectories  uint32
	SqpkAddCommands    uint32
	SqpkDeleteCommands uint32
	SqpkExpandCommands uint32
	SqpkHeaderCommands uint32
	SqpkFileCommands   uint32
}

// count records one decoded chunk. Every chunk, the end-of-file marker included,
// adds to the total.
func (c *ZiPatchCommandCounts) count(chunk Chunk) {
	c.TotalCommands++

	switch chunk.(type) {
	case *AddDirectoryChunk:
		c.AddDirectories++
	case *DeleteDirectoryChunk:
		c.DeleteDirectories++
	case *SqpkHeader:
		c.SqpkHeaderCommands++
	case *SqpkFile:
		c.SqpkFileCommands++
	case *SqpkAddData:
		c.SqpkAddCommands++
	case *SqpkDeleteData:
		c.SqpkDeleteCommands++
	case *SqpkExpandData:
		c.SqpkExpandCommands++
	}
}

// ZiPatchChangeSet lists the installation paths a patch touches
type ZiPatchChangeSet struct {
	Added    []string
	Deleted  []string
	Modified []string
}

// changeSetBuilder collects paths while replaying a patch
type changeSetBuilder struct {
	added    map[string]struct{}
	deleted  map[string]struct{}
	modified map[string]struct{}
}

func newChangeSetBuilder() *changeSetBuilder {
	return &changeSetBuilder{
		added:    ToSet[string](nil),
		deleted:  ToSet[string](nil),
		modified: ToSet[string](nil),
	}
}

// build drops from Added whatever was also modified later in the patch
func (b *changeSetBuilder) build() *ZiPatchChangeSet {
	for path := range b.modified {
		delete(b.added, path)
	}
	return &ZiPatchChangeSet{
		Added:    sortedKeys(b.added),
		Deleted:  sortedKeys(b.deleted),
		Modified: sortedKeys(b.modified),
	}
}

func mark(set map[string]struct{}, path string) {
	set[path] = struct{}{}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// record folds one chunk into the change set. Container commands need the platform
// to name their file, which a target-info chunk earlier in the patch provides.
func (b *changeSetBuilder) record(chunk Chunk, platform *PlatformId, known *bool) error {
	var container *SqpackFile

	switch c := chunk.(type) {
	case *SqpkTargetInfo:
		*platform = c.Platform
		*known = true

	case *AddDirectoryChunk:
		mark(b.added, c.DirName)

	case *DeleteDirectoryChunk:
		mark(b.deleted, c.DirName)

	case *SqpkFile:
		switch c.Operation {
		case SqpkFileDeleteFile:
			mark(b.deleted, c.TargetFile.RelativePath)
		case SqpkFileMakeDirTree:
			mark(b.added, c.TargetFile.RelativePath)
		case SqpkFileRemoveAll:
			folder := GetExpansionFolder(byte(c.ExpansionId))
			mark(b.deleted, "sqpack/"+folder+"/")
			mark(b.deleted, "movie/"+folder+"/")
		default:
			if c.FileOffset == 0 {
				mark(b.added, c.TargetFile.RelativePath)
			} else {
				mark(b.modified, c.TargetFile.RelativePath)
			}
		}

	case *SqpkAddData:
		container = c.TargetFile
	case *SqpkDeleteData:
		container = c.TargetFile
	case *SqpkExpandData:
		container = c.TargetFile
	case *SqpkHeader:
		container = c.TargetFile
	}

	if container != nil {
		if !*known {
			return newZiPatchError(KindPlatform, nil, "cannot name %s before a target info command", container)
		}
		mark(b.modified, container.FileName(*platform))
	}
	return nil
}

// ZiPatchInspection gathers what one pass over a patch can tell
type ZiPatchInspection struct {
	Header *FileHeaderChunk
	Counts *ZiPatchCommandCounts
	// Changes is nil unless requested
	Changes *ZiPatchChangeSet
}

// Inspect walks the patch once, counting commands and optionally collecting the
// change set. onChunk, when set, sees every chunk. Works on single-pass sources too.
func (z *ZiPatchFile) Inspect(config *ZiPatchConfig, withChanges bool, onChunk DelegateApplyChunk) (*ZiPatchInspection, error) {
	platform, known := config.TargetPlatform()
	counts := &ZiPatchCommandCounts{}
	var builder *changeSetBuilder
	if withChanges {
		builder = newChangeSetBuilder()
	}

	err := z.replay(func(chunk Chunk) error {
		counts.count(chunk)
		if builder != nil {
			if err := builder.record(chunk, &platform, &known); err != nil {
				return err
			}
		}
		if onChunk != nil {
			onChunk(chunk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inspection := &ZiPatchInspection{Header: z.Header(), Counts: counts}
	if builder != nil {
		inspection.Changes = builder.build()
	}
	return inspection, nil
}
