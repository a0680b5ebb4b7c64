package main

import (
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tboxio/go-chunkupload/upload/digest"
)

func newChecksumCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checksum [paths or URLs...]",
		Short: "Print the content hash the upload command would send",
		Long: `Compute the SHA-256 of each file without uploading it. Arguments are resolved
the same way as for upload. The output matches sha256sum.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			windowSize, err := units.RAMInBytes(cmd.Flag("window-size").Value.String())
			if err != nil {
				return fmt.Errorf("invalid window size: %w", err)
			}
			if windowSize <= 0 || windowSize > int64(^uint(0)>>1) {
				return fmt.Errorf("invalid window size: %d", windowSize)
			}

			logger := log.NewLogger()
			logger.EnableDebugLog(v.GetBool("verbose"))

			resolver := newSourceResolver(logger)
			defer resolver.cleanup()

			paths, err := resolver.resolve(cmd.Context(), args)
			if err != nil {
				return err
			}

			for _, pth := range paths {
				contentHash, err := digest.ComputeFile(cmd.Context(), pth, int(windowSize))
				if err != nil {
					return fmt.Errorf("checksum %s: %w", pth, err)
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", contentHash, pth); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().String("window-size", "32MiB", "Read window of the checksum pass")

	return cmd
}
