package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/mattiabonardi/endor-odm-go/internal/products"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk_configuration"
	"github.com/spf13/cobra"
)

const shapePattern = "**/*.{yaml,yml}"

var (
	shapesDir   string
	printSchema bool
)

var shapesCmd = &cobra.Command{
	Use:   "shapes",
	Short: "Inspect the shapes compiled into the binary",
}

var shapesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compare shape definition files with the compiled shapes",
	Long: `validate loads every YAML shape definition under the schema directory and
reports each collection whose declared shape differs from the compiled one.
It exits with status 1 when any drift is found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir := shapesDir
		if dir == "" {
			dir = cfg.SchemaDir
		}
		if dir == "" {
			return fmt.Errorf("no shape directory: set SCHEMA_DIR or pass --dir")
		}

		db, err := boundDatabase(cfg)
		if err != nil {
			return err
		}
		declared, err := sdk.LoadShapeDefinitions(os.DirFS(dir), shapePattern)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if printSchema {
			shapes := db.Shapes()
			names := make([]string, 0, len(shapes))
			for name := range shapes {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				rendered, err := shapes[name].RootSchema().ToYAML()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "# %s\n%s---\n", name, rendered)
			}
		}

		drift := sdk.CompareShapes(db.Shapes(), declared)
		for _, d := range drift {
			fmt.Fprintf(out, "%s (%s): %s\n", d.Collection, d.Source, d.Reason)
		}
		if len(drift) > 0 {
			return fmt.Errorf("%d shape definition(s) differ from the compiled shapes", len(drift))
		}
		fmt.Fprintf(out, "%d shape definition(s) match\n", len(declared))
		return nil
	},
}

// boundDatabase binds every compiled collection on a handle that is never dialed.
func boundDatabase(cfg *sdk_configuration.ServerConfig) (*sdk.Database, error) {
	db, err := sdk.NewDatabase(cfg.DocumentDB, sdk.NopLogger())
	if err != nil {
		return nil, err
	}
	if _, err := products.NewRepository(db, cfg.DocumentDB.FindLimit); err != nil {
		return nil, err
	}
	return db, nil
}

func init() {
	shapesValidateCmd.Flags().StringVarP(&shapesDir, "dir", "d", "", "shape definition directory (default: SCHEMA_DIR)")
	shapesValidateCmd.Flags().BoolVar(&printSchema, "print-schema", false, "print the compiled shapes as YAML schemas")
	shapesCmd.AddCommand(shapesValidateCmd)
	rootCmd.AddCommand(shapesCmd)
}
