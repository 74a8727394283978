package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/cropctx/internal/config"
	"github.com/KaramelBytes/cropctx/internal/field"
)

var (
	listFields    bool
	listReports   bool
	listFieldName string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List field workspaces or the reports of one field",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listFields == listReports { // either both true or both false
			return fmt.Errorf("specify exactly one of --fields or --reports")
		}
		c, err := settings()
		if err != nil {
			return err
		}
		if listFields {
			return listAllFields(c)
		}
		if listFieldName == "" {
			return fmt.Errorf("--field is required when using --reports")
		}
		f, err := loadFieldByName(c, listFieldName)
		if err != nil {
			return err
		}
		if len(f.Reports) == 0 {
			fmt.Println("(no reports)")
			return nil
		}
		for _, r := range f.Reports {
			fmt.Printf("- %s: %s (%s)\n", shortID(r.ID), r.File, r.Headline)
		}
		return nil
	},
}

func listAllFields(c *cfgpkg.Global) error {
	root, err := fieldsRoot(c)
	if err != nil {
		return err
	}
	fields, err := field.List(root)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		fmt.Println("(no fields)")
		return nil
	}
	for _, f := range fields {
		line := "- " + f.Name
		if f.Dataset != "" {
			line += " → " + f.Dataset
		}
		if latest := f.Latest(); latest != nil {
			line += fmt.Sprintf(" [%d reports, latest: %s]", len(f.Reports), latest.Headline)
		}
		fmt.Println(line)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listFields, "fields", false, "list field workspaces")
	listCmd.Flags().BoolVar(&listReports, "reports", false, "list reports attached to a field")
	listCmd.Flags().StringVarP(&listFieldName, "field", "f", "", "field name for --reports")
}
