package gen

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/redisclient/internal/meta"
)

var (
	// Where generated pages are written
	outDir string
)

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for redisclient",
	Long: `Generates a section 1 man page for every redisclient command, written to
--dir ("man" under the current directory by default).`,

	RunE: func(cmd *cobra.Command, args []string) error {
		header := &doc.GenManHeader{
			Section: "1",
			Manual:  "redisclient Manual",
			Source:  fmt.Sprintf("redisclient %s", meta.GetInfo()),
		}

		return generate(cmd, "man pages", func(root *cobra.Command, dir string) error {
			return doc.GenManTree(root, header, dir)
		})
	},
}

var MarkdownCmd = &cobra.Command{
	Use:   "markdown",
	Short: "Generate markdown reference pages for redisclient",

	RunE: func(cmd *cobra.Command, args []string) error {
		return generate(cmd, "markdown pages", doc.GenMarkdownTree)
	},
}

func generate(cmd *cobra.Command, what string, gen func(*cobra.Command, string) error) error {
	out := cmd.OutOrStdout()

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return err
	}

	root := cmd.Root()
	root.DisableAutoGenTag = true

	fmt.Fprintf(out, "Generating redisclient %s in %s\n", what, outDir)

	if err := gen(root, outDir); err != nil {
		return err
	}

	fmt.Fprintln(out, "Done.")
	return nil
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVar(&outDir, "dir", "man", "the directory to write the pages to")

	// For bash-completion
	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}
}
