package internal

import "fmt"

// SqpackFileKind tells data containers from index containers
type SqpackFileKind int

const (
	SqpackDatFile SqpackFileKind = iota
	SqpackIndexFile
)

// SqpackFile references a sqpack container by its (main, sub, file) id triple.
// The on-disk name depends on the platform, so RelativePath only becomes the
// full container path once ResolvePath has run.
type SqpackFile struct {
	SqexFile

	Kind   SqpackFileKind
	MainId uint16
	SubId  uint16
	FileId uint32
}

func readSqpackFile(r *ChecksumBinaryReader, kind SqpackFileKind) *SqpackFile {
	file := &SqpackFile{
		Kind:   kind,
		MainId: r.ReadUInt16BE(),
		SubId:  r.ReadUInt16BE(),
		FileId: r.ReadUInt32BE(),
	}
	file.RelativePath = file.ExpansionPath()
	return file
}

// ExpansionId is the high byte of the sub id
func (f *SqpackFile) ExpansionId() byte {
	return byte(f.SubId >> 8)
}

// ExpansionPath is the container directory, with a trailing separator
func (f *SqpackFile) ExpansionPath() string {
	return "sqpack/" + GetExpansionFolder(f.ExpansionId()) + "/"
}

// FileName returns the container path for platform
func (f *SqpackFile) FileName(platform PlatformId) string {
	name := fmt.Sprintf("%s%02x%04x.%s", f.ExpansionPath(), f.MainId, f.SubId, platform)
	switch f.Kind {
	case SqpackIndexFile:
		if f.FileId == 0 {
			return name + ".index"
		}
		return fmt.Sprintf("%s.index%d", name, f.FileId)
	default:
		return fmt.Sprintf("%s.dat%d", name, f.FileId)
	}
}

// ResolvePath fixes RelativePath to the container name for platform
func (f *SqpackFile) ResolvePath(platform PlatformId) {
	f.RelativePath = f.FileName(platform)
}

func (f *SqpackFile) String() string {
	kind := "dat"
	if f.Kind == SqpackIndexFile {
		kind = "index"
	}
	return fmt.Sprintf("%s:%02x%04x:%d", kind, f.MainId, f.SubId, f.FileId)
}
