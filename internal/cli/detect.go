package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var annotateOut string

var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Print the bounding boxes of the faces on an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		j, err := openJdlib()
		if err != nil {
			return err
		}
		defer j.Close()

		mat, b, err := readImage(args[0])
		if err != nil {
			return err
		}
		defer mat.Close()

		rects, err := j.DetectFacePixels(b.Pix, b.Height, b.Width)
		if err != nil {
			return err
		}

		if annotateOut != "" {
			if err := annotate(mat, rects, annotateOut); err != nil {
				return err
			}
			logger.Info("annotated image written", zap.String("path", annotateOut), zap.Int("faces", len(rects)))
		}

		return printJSON(cmd.OutOrStdout(), rects)
	},
}

var landmarksCmd = &cobra.Command{
	Use:   "landmarks <image>",
	Short: "Print the faces on an image with their landmark points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		j, err := openJdlib()
		if err != nil {
			return err
		}
		defer j.Close()

		mat, b, err := readImage(args[0])
		if err != nil {
			return err
		}
		defer mat.Close()

		faces, err := j.FaceLandmarksPixels(b.Pix, b.Height, b.Width)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), faces)
	},
}

var embedCmd = &cobra.Command{
	Use:   "embed <image>",
	Short: "Print the faces on an image with their 128-dimensional embeddings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		j, err := openJdlib()
		if err != nil {
			return err
		}
		defer j.Close()

		faces, err := embeddings(j, args[0])
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), faces)
	},
}

func init() {
	detectCmd.Flags().StringVar(&annotateOut, "annotate", "", "Write a copy of the image with the faces outlined")
	rootCmd.AddCommand(detectCmd, landmarksCmd, embedCmd)
}
