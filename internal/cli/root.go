// Package cli wires the cci2cia command: a single root command, no
// subcommands, grounded on the teacher's internal/cli/root.go +
// internal/cli/identify/root.go cobra structure.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sargunv/cci2cia/internal/ciaerr"
	"github.com/sargunv/cci2cia/internal/format"
	"github.com/sargunv/cci2cia/internal/progress"
	"github.com/sargunv/cci2cia/internal/support"
	"github.com/sargunv/cci2cia/lib/convert"
)

var (
	overwrite bool
	verbose   bool
	outputDir string
)

var rootCmd = &cobra.Command{
	Use:   "cci2cia [flags] -- FILE...",
	Short: "Convert 3DS CCI (.3ds/.cci) cartridge dumps into installable CIA files",
	Long: `cci2cia converts a 3DS CCI cartridge dump into a CIA file installable
over title management (e.g. via FBI).

It needs three support files alongside the current directory or in
~/.3ds: a retail boot9 dump (boot9.bin or boot9_prot.bin), a retail
certificate chain (cert_chain_retail.bin), and a ticket+TMD template
(ticket_tmd.bin).`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runConvert,
}

func init() {
	rootCmd.Flags().BoolVarP(&overwrite, "overwrite", "O", false, "overwrite an existing output file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show a live progress bar per file")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "directory to write .cia files into")
}

// Execute runs the root command, returning its error (cobra has
// already printed it unless SilenceErrors is set upstream).
func Execute() error {
	return rootCmd.Execute()
}

func runConvert(cmd *cobra.Command, args []string) error {
	dir, err := expandDir(outputDir)
	if err != nil {
		return fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	files, err := support.Load()
	if err != nil {
		return describeErr(err)
	}
	cfg := convert.Config{
		KeyX:      files.KeyX,
		CertChain: files.CertChain,
		TicketTMD: files.TicketTMD,
	}

	failures := 0
	for _, inputPath := range args {
		if err := convertOne(inputPath, dir, cfg); err != nil {
			failures++
			fmt.Fprintln(os.Stderr, format.ErrorStyle.Render(fmt.Sprintf("%s: %v", inputPath, err)))
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d file(s) failed to convert", failures, len(args))
	}
	return nil
}

func convertOne(inputPath, dir string, cfg convert.Config) (err error) {
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	ciaPath := filepath.Join(dir, stem+".cia")
	_, existsErr := os.Stat(ciaPath)
	existed := existsErr == nil

	var obs convert.Observer
	var bar *progress.Bubbles
	if verbose && isTerminal() {
		info, statErr := os.Stat(inputPath)
		total := int64(0)
		if statErr == nil {
			total = info.Size()
		}
		bar = progress.NewBubbles(stem, total)
		obs = bar
	} else {
		obs = progress.Plain{Label: stem}
	}

	outputPath, convErr := convert.Convert(inputPath, stem, dir, overwrite, cfg, obs)
	if bar != nil {
		bar.Close()
	}
	if convErr != nil {
		// Convert doesn't return a path on failure, but the path it
		// would have written is deterministic from stem and dir, so the
		// partial file (if any) can still be removed here. A file that
		// was already there before this run is only removed when
		// --overwrite was given; otherwise Convert never opened it.
		if !existed || overwrite {
			os.Remove(ciaPath)
		}
		return describeErr(convErr)
	}

	fmt.Println(format.OKStyle.Render(fmt.Sprintf("wrote %s", outputPath)))
	return nil
}

func describeErr(err error) error {
	if kind, ok := ciaerr.KindOf(err); ok {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return err
}

func expandDir(dir string) (string, error) {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return filepath.Abs(dir)
}

func isTerminal() bool {
	info, err := os.Stdout.Stat()
	return err == nil && (info.Mode()&os.ModeCharDevice) != 0
}
