package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lightfield-labs/prism/internal/models"
	"github.com/lightfield-labs/prism/internal/ui"
	"github.com/spf13/cobra"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload <image-dir>",
	Short: "Upload a local image set",
	Long: `Upload a directory of source images to remote storage under a fresh
root id. The printed id seeds the rest of the pipeline.

Example:
  prism upload ./captures/kitchen
  prism pipeline reconstruct <upload-id>`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	images, err := collectImages(args[0])
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("no images found in %s (expected .jpg, .jpeg, or .png)", args[0])
	}

	ident := models.NewRootID()
	uploadID := ident.String()

	if _, err := rt.store.Create(uploadID, models.JobTypeUpload, map[string]any{
		"image_count": len(images),
		"source_dir":  args[0],
	}); err != nil {
		return err
	}
	if _, err := rt.store.Update(uploadID, models.JobStatusProcessing, nil); err != nil {
		return err
	}

	bar := ui.NewProgressBar(int64(len(images)), "Uploading images")
	for _, local := range images {
		remote := fmt.Sprintf("%s/%s", ident.ImagesPath(), filepath.Base(local))
		if err := rt.client.UploadFile(local, remote); err != nil {
			_ = bar.Clear()
			_, _ = rt.store.Update(uploadID, models.JobStatusFailed, map[string]any{
				"error": err.Error(),
			})
			return fmt.Errorf("upload of %s failed: %w", filepath.Base(local), err)
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if _, err := rt.store.Update(uploadID, models.JobStatusComplete, nil); err != nil {
		return err
	}

	fmt.Printf("\nUploaded %d images\n", len(images))
	fmt.Printf("Upload ID: %s\n", uploadID)
	fmt.Printf("\nStart reconstruction with 'prism pipeline reconstruct %s'\n", uploadID)
	return nil
}

// collectImages returns the image files directly inside dir, sorted by name
func collectImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read image directory %s: %w", dir, err)
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if imageExtensions[ext] {
			images = append(images, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}
