package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/listing"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/scan"
)

// NewChunkCommand creates the chunk command
func NewChunkCommand() *cobra.Command {
	var contentID, mimetype string
	var chunkSize int64

	cmd := &cobra.Command{
		Use:   "chunk <space> <file>",
		Short: "Split a file into chunks and store them with a manifest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			space, path := args[0], args[1]

			svc, _, err := newServiceFromFlags(cmd)
			if err != nil {
				return err
			}

			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer file.Close()

			info, err := file.Stat()
			if err != nil {
				return fmt.Errorf("failed to stat file: %w", err)
			}

			if contentID == "" {
				contentID = filepath.Base(path)
			}
			if mimetype == "" {
				mimetype = mime.TypeByExtension(filepath.Ext(path))
			}

			manifest, err := svc.Chunk(cmd.Context(), chunkstore.ChunkRequest{
				Container:       space,
				SourceContentID: contentID,
				Mimetype:        mimetype,
				Size:            info.Size(),
				Body:            file,
				MaxChunkSize:    chunkSize,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Manifest: %s\n", manifest.ManifestID())
			fmt.Fprintf(out, "Size:     %d\n", manifest.Header.SourceByteSize)
			fmt.Fprintf(out, "MD5:      %s\n", manifest.Header.SourceMD5)
			fmt.Fprintf(out, "Chunks:   %d\n", len(manifest.Entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&contentID, "id", "", "source content id (default: file name)")
	cmd.Flags().StringVar(&mimetype, "mimetype", "", "mimetype of the content (default: from file extension)")
	cmd.Flags().Int64Var(&chunkSize, "chunk-size", 0, "chunk size in bytes (default: configured max chunk size)")
	return cmd
}

// NewStitchCommand creates the stitch command
func NewStitchCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "stitch <space> <content-id>",
		Short: "Reassemble a chunked item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newServiceFromFlags(cmd)
			if err != nil {
				return err
			}

			content, err := svc.Stitch(cmd.Context(), args[0], manifestIDArg(args[1]))
			if err != nil {
				return err
			}
			defer content.Body.Close()

			var dst io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				dst = file
			}

			digest := chunkstore.NewDigestReader(content.Body)
			if _, err := io.Copy(dst, digest); err != nil {
				return fmt.Errorf("failed to stitch %s: %w", content.ID, err)
			}
			if expected := content.Properties.Checksum(); expected != "" && expected != digest.Sum() {
				return fmt.Errorf("%w: manifest %s, stitched %s", chunkstore.ErrChecksumMismatch, expected, digest.Sum())
			}
			if dst != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes of %s to %s\n", digest.BytesRead(), content.ID, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

// NewVerifyCommand creates the verify command
func NewVerifyCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify <space> <content-id>",
		Short: "Check stored chunks against their manifest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newServiceFromFlags(cmd)
			if err != nil {
				return err
			}

			results, err := svc.Verify(cmd.Context(), args[0], manifestIDArg(args[1]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, res := range results.Results {
					if res.Success {
						fmt.Fprintf(out, "OK    %s\n", res.ChunkID)
					} else {
						fmt.Fprintf(out, "FAIL  %s: %s\n", res.ChunkID, res.Error)
					}
				}
			}

			if !results.IsSuccess() {
				return fmt.Errorf("%d of %d chunks failed verification", len(results.Failures()), len(results.Results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <space> <content-id>",
		Short: "Delete a chunked item, chunks first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newServiceFromFlags(cmd)
			if err != nil {
				return err
			}

			manifestID := manifestIDArg(args[1])
			if err := svc.Delete(cmd.Context(), args[0], manifestID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", manifestID)
			return nil
		},
	}
}

// NewCopyCommand creates the copy command
func NewCopyCommand() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "copy <space> <content-id> --to <space>",
		Short: "Copy a chunked item into another space",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return errors.New("--to is required")
			}
			svc, _, err := newServiceFromFlags(cmd)
			if err != nil {
				return err
			}

			manifestID := manifestIDArg(args[1])
			if err := svc.Copy(cmd.Context(), args[0], manifestID, to); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied %s to %s\n", manifestID, to)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "destination space")
	return cmd
}

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <space>",
		Short: "List the chunked items of a space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := newServiceFromFlags(cmd)
			if err != nil {
				return err
			}

			ids, err := svc.ListManifests(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CONTENT ID\tSIZE\tCHUNKS\tMD5")
			for _, id := range ids {
				manifest, err := svc.LoadManifest(cmd.Context(), args[0], id)
				if err != nil {
					fmt.Fprintf(w, "%s\t-\t-\t%v\n", chunkstore.SourceIDFromManifestID(id), err)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
					manifest.Header.SourceContentID,
					manifest.Header.SourceByteSize,
					len(manifest.Entries),
					manifest.Header.SourceMD5)
			}
			return w.Flush()
		},
	}
}

// NewListingCommand creates the listing command
func NewListingCommand() *cobra.Command {
	var format, tempDir string

	cmd := &cobra.Command{
		Use:   "listing <space>",
		Short: "Print a space listing with chunked items collapsed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listFormat, err := listing.ParseFormat(format)
			if err != nil {
				return err
			}
			svc, logger, err := newServiceFromFlags(cmd)
			if err != nil {
				return err
			}

			formatters := listing.NewFormatters()
			stitcher := listing.NewStitcher(
				listing.NewStoreSource(svc.Store(), formatters),
				chunkstore.NewStitcher(svc.Store(), chunkstore.WithStitcherLogger(logger)),
				formatters,
				listing.WithLogger(logger),
				listing.WithTempDir(tempDir),
			)

			stitched, err := stitcher.Generate(cmd.Context(), args[0], listFormat)
			if err != nil {
				return err
			}
			defer stitched.Close()

			_, err = io.Copy(cmd.OutOrStdout(), stitched)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(listing.FormatTSV), "listing format (tsv, bagit)")
	cmd.Flags().StringVar(&tempDir, "temp-dir", "", "directory for the spooled listing (default: system temp dir)")
	return cmd
}

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	var prefix string
	var batchSize int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "scan <space>",
		Short: "Verify every chunked item of a space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := newServiceFromFlags(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result, err := scan.New(svc, logger).Scan(cmd.Context(), scan.ScanOptions{
				Container: args[0],
				Prefix:    prefix,
				Processor: scan.NewVerifyProcessor(svc, logger),
				BatchSize: batchSize,
				DryRun:    dryRun,
				OnProgress: func(processed, total int64) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Progress: %d/%d\n", processed, total)
				},
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Found:     %d\n", result.TotalFound)
			fmt.Fprintf(out, "Verified:  %d\n", result.TotalProcessed)
			fmt.Fprintf(out, "Failed:    %d\n", result.TotalFailed)
			for _, id := range result.FailedIDs {
				fmt.Fprintf(out, "  %s\n", id)
			}
			if result.TotalFailed > 0 {
				return fmt.Errorf("%d chunked items failed verification", result.TotalFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "only scan source content ids with this prefix")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "manifests per progress report")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be verified without verifying")
	return cmd
}
