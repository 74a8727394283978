package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/cropctx/internal/field"
	"github.com/KaramelBytes/cropctx/internal/utils"
)

var (
	initDescription string
	initDataset     string
)

var initCmd = &cobra.Command{
	Use:   "init <field-name>",
	Short: "Initialize a new field workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		name := args[0]
		if name != filepath.Base(name) || name == "." || name == ".." {
			return fmt.Errorf("invalid field name %q", name)
		}
		fieldDir, err := resolveFieldDirByName(c, name)
		if err != nil {
			return err
		}
		// Refuse to overwrite an existing field.
		if info, err := os.Stat(fieldDir); err == nil && info.IsDir() {
			if _, err := os.Stat(filepath.Join(fieldDir, field.FileName)); err == nil {
				return fmt.Errorf("field already exists at %s", fieldDir)
			}
			entries, err := os.ReadDir(fieldDir)
			if err != nil {
				return fmt.Errorf("inspect field directory: %w", err)
			}
			if len(entries) > 0 {
				return fmt.Errorf("directory %s already exists and is not empty; refusing to initialize field", fieldDir)
			}
		} else if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("stat field directory: %w", err)
		}
		if err := utils.EnsureDir(fieldDir); err != nil {
			return err
		}
		f := field.New(name, initDescription, fieldDir)
		if initDataset != "" {
			if err := f.SetDataset(initDataset); err != nil {
				return err
			}
		}
		if err := f.Save(); err != nil {
			return err
		}
		fmt.Printf("✓ Field initialized: %s\n", fieldDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initDescription, "desc", "d", "", "field description")
	initCmd.Flags().StringVar(&initDataset, "dataset", "", "dataset file for this field")
}
