package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/goccy/go-yaml"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/riverfog7/ZiPatchClient/internal"
)

type chunkReport struct {
	Offset        int64
	Type          string
	Size          int
	Fingerprint   string
	ChecksumValid bool
	Description   string
}

type patchReport struct {
	Path           string
	FileSize       int64
	Version        uint8
	PatchType      string
	Repository     string
	MinorVersion   uint32
	EntryFiles     uint32
	DeleteDataSize int64
	DeclaredCounts *internal.ZiPatchCommandCounts
	ActualCounts   *internal.ZiPatchCommandCounts
	Changes        *internal.ZiPatchChangeSet
	Chunks         []chunkReport
}

func InspectCommand(cmd *InspectCmd, out io.Writer) int {
	report, err := buildPatchReport(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error inspecting %s: %v\n", cmd.Patch, err)
		return 1
	}

	if cmd.Field != "" {
		value, err := report.field(cmd.Field)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, value)
		return 0
	}

	switch strings.ToLower(cmd.Output) {
	case "json":
		err = writeReportJSON(out, report)
	case "yaml":
		err = writeReportYAML(out, report)
	case "table", "":
		err = writeReportTable(out, report)
	default:
		err = fmt.Errorf("unknown output format %q", cmd.Output)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func buildPatchReport(cmd *InspectCmd) (*patchReport, error) {
	info, err := os.Stat(cmd.Patch)
	if err != nil {
		return nil, err
	}

	patch, err := internal.OpenZiPatchFile(cmd.Patch)
	if err != nil {
		return nil, err
	}
	defer patch.Close()

	config := internal.NewZiPatchConfig("")
	if cmd.Platform != "" {
		platform, err := internal.ParsePlatformId(cmd.Platform)
		if err != nil {
			return nil, err
		}
		config.SetPlatform(platform)
	}

	report := &patchReport{Path: cmd.Patch, FileSize: info.Size()}
	inspection, err := patch.Inspect(config, cmd.Changes, func(chunk internal.Chunk) {
		if !cmd.Chunks {
			return
		}
		header := chunk.Info()
		report.Chunks = append(report.Chunks, chunkReport{
			Offset:        header.Offset,
			Type:          chunk.ChunkType(),
			Size:          header.Size,
			Fingerprint:   internal.FingerprintHex(header.Fingerprint),
			ChecksumValid: chunk.IsChecksumValid(),
			Description:   chunk.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	if header := inspection.Header; header != nil {
		report.Version = header.Version
		report.PatchType = header.PatchType
		report.Repository = fmt.Sprintf("%08x", header.RepositoryName)
		report.MinorVersion = header.MinorVersion
		report.EntryFiles = header.EntryFiles
		report.DeleteDataSize = header.DeleteDataSize
		if cmd.Counts {
			report.DeclaredCounts = header.CommandCounts
		}
	}
	if cmd.Counts {
		report.ActualCounts = inspection.Counts
	}
	report.Changes = inspection.Changes
	return report, nil
}

// field returns one header value, for scripts
func (r *patchReport) field(name string) (string, error) {
	switch strings.ToLower(name) {
	case "repository":
		return r.Repository, nil
	case "type":
		return r.PatchType, nil
	case "minor":
		return fmt.Sprintf("%d", r.MinorVersion), nil
	default:
		return "", fmt.Errorf("unknown field %q, expected repository, type or minor", name)
	}
}

func countsMap(counts *internal.ZiPatchCommandCounts) map[string]interface{} {
	return map[string]interface{}{
		"total_commands":       counts.TotalCommands,
		"add_directories":      counts.AddDirectories,
		"delete_directories":   counts.DeleteDirectories,
		"sqpk_add_commands":    counts.SqpkAddCommands,
		"sqpk_delete_commands": counts.SqpkDeleteCommands,
		"sqpk_expand_commands": counts.SqpkExpandCommands,
		"sqpk_header_commands": counts.SqpkHeaderCommands,
		"sqpk_file_commands":   counts.SqpkFileCommands,
	}
}

func stringList(items []string) []interface{} {
	list := make([]interface{}, len(items))
	for i, item := range items {
		list[i] = item
	}
	return list
}

// asMap flattens the report into the value shapes structpb accepts
func (r *patchReport) asMap() map[string]interface{} {
	m := map[string]interface{}{
		"path":             r.Path,
		"file_size":        r.FileSize,
		"version":          uint32(r.Version),
		"patch_type":       r.PatchType,
		"repository":       r.Repository,
		"minor_version":    r.MinorVersion,
		"entry_files":      r.EntryFiles,
		"delete_data_size": r.DeleteDataSize,
	}
	if r.DeclaredCounts != nil {
		m["declared_counts"] = countsMap(r.DeclaredCounts)
	}
	if r.ActualCounts != nil {
		m["actual_counts"] = countsMap(r.ActualCounts)
	}
	if r.Changes != nil {
		m["changes"] = map[string]interface{}{
			"added":    stringList(r.Changes.Added),
			"deleted":  stringList(r.Changes.Deleted),
			"modified": stringList(r.Changes.Modified),
		}
	}
	if r.Chunks != nil {
		chunks := make([]interface{}, len(r.Chunks))
		for i, chunk := range r.Chunks {
			chunks[i] = map[string]interface{}{
				"offset":         chunk.Offset,
				"type":           chunk.Type,
				"size":           chunk.Size,
				"fingerprint":    chunk.Fingerprint,
				"checksum_valid": chunk.ChecksumValid,
				"description":    chunk.Description,
			}
		}
		m["chunks"] = chunks
	}
	return m
}

func writeReportJSON(out io.Writer, report *patchReport) error {
	message, err := structpb.NewStruct(report.asMap())
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func writeReportYAML(out io.Writer, report *patchReport) error {
	data, err := yaml.Marshal(report.asMap())
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func writeReportTable(out io.Writer, report *patchReport) error {
	label := color.New(color.FgCyan).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(out, "%s %s (%s)\n", label("Patch:"), report.Path, humanize.IBytes(uint64(report.FileSize)))
	fmt.Fprintf(out, "%s V%d %s\n", label("Header:"), report.Version, report.PatchType)
	fmt.Fprintf(out, "%s %s\n", label("Repository:"), report.Repository)
	fmt.Fprintf(out, "%s %d\n", label("Minor version:"), report.MinorVersion)
	fmt.Fprintf(out, "%s %d\n", label("Entry files:"), report.EntryFiles)
	fmt.Fprintf(out, "%s %s\n", label("Delete data size:"), humanize.IBytes(uint64(report.DeleteDataSize)))

	if report.ActualCounts != nil {
		fmt.Fprintln(out, label("Commands:"))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\tkind\tdeclared\tactual")
		declared := report.DeclaredCounts
		if declared == nil {
			declared = &internal.ZiPatchCommandCounts{}
		}
		rows := []struct {
			name             string
			declared, actual uint32
		}{
			{"total", declared.TotalCommands, report.ActualCounts.TotalCommands},
			{"ADIR", declared.AddDirectories, report.ActualCounts.AddDirectories},
			{"DELD", declared.DeleteDirectories, report.ActualCounts.DeleteDirectories},
			{"SQPK:A", declared.SqpkAddCommands, report.ActualCounts.SqpkAddCommands},
			{"SQPK:D", declared.SqpkDeleteCommands, report.ActualCounts.SqpkDeleteCommands},
			{"SQPK:E", declared.SqpkExpandCommands, report.ActualCounts.SqpkExpandCommands},
			{"SQPK:H", declared.SqpkHeaderCommands, report.ActualCounts.SqpkHeaderCommands},
			{"SQPK:F", declared.SqpkFileCommands, report.ActualCounts.SqpkFileCommands},
		}
		for _, row := range rows {
			fmt.Fprintf(tw, "\t%s\t%d\t%d\n", row.name, row.declared, row.actual)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if report.Changes != nil {
		for _, group := range []struct {
			name  string
			paths []string
		}{
			{"Added", report.Changes.Added},
			{"Deleted", report.Changes.Deleted},
			{"Modified", report.Changes.Modified},
		} {
			fmt.Fprintf(out, "%s %d\n", label(group.name+":"), len(group.paths))
			for _, path := range group.paths {
				fmt.Fprintf(out, "  %s\n", path)
			}
		}
	}

	if report.Chunks != nil {
		fmt.Fprintln(out, label("Chunks:"))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, chunk := range report.Chunks {
			description := chunk.Description
			if !chunk.ChecksumValid {
				description = bad(description + " (bad checksum)")
			}
			fmt.Fprintf(tw, "\t%d\t%s\t%s\t%s\n", chunk.Offset, humanize.IBytes(uint64(chunk.Size)), chunk.Fingerprint, description)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
