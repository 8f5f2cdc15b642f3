package cli

import (
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dimuls/jdlib"
	"github.com/dimuls/jdlib/internal/gallery"
)

type comparison struct {
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
	Same      bool    `json:"same"`
}

var compareCmd = &cobra.Command{
	Use:   "compare <image> <image>",
	Short: "Tell whether two single-face photos show the same person",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		j, err := openJdlib()
		if err != nil {
			return err
		}
		defer j.Close()

		a, err := singleEmbedding(j, args[0])
		if err != nil {
			return err
		}
		b, err := singleEmbedding(j, args[1])
		if err != nil {
			return err
		}

		distance := gallery.Distance(a, b)
		return printJSON(cmd.OutOrStdout(), comparison{
			Distance:  distance,
			Threshold: cfg.Match.Threshold,
			Same:      distance <= cfg.Match.Threshold,
		})
	},
}

var galleryDir string

type identification struct {
	Face     jdlib.FaceDescriptor `json:"face"`
	Person   string               `json:"person,omitempty"`
	Distance float64              `json:"distance"`
	Matched  bool                 `json:"matched"`
}

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Match every face on an image against a directory of known persons",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		j, err := openJdlib()
		if err != nil {
			return err
		}
		defer j.Close()

		g, err := loadGallery(j, galleryDir)
		if err != nil {
			return err
		}

		faces, err := embeddings(j, args[0])
		if err != nil {
			return err
		}

		result := make([]identification, len(faces))
		for i, f := range faces {
			result[i] = identification{Face: f}
			if len(g.Persons) == 0 {
				continue
			}
			p, distance, ok := g.Match(*f.Embedding, cfg.Match.Threshold)
			result[i].Distance = distance
			result[i].Matched = ok
			if ok {
				result[i].Person = p.Name
			}
		}

		return printJSON(cmd.OutOrStdout(), result)
	},
}

func loadGallery(j *jdlib.Jdlib, dir string) (*gallery.Gallery, error) {
	photos, err := gallery.List(dir)
	if err != nil {
		return nil, err
	}

	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetDescription("Loading gallery"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	return gallery.Build(photos,
		func(path string) ([]jdlib.FaceDescriptor, error) { return embeddings(j, path) },
		func(gallery.Photo) { bar.Add(1) })
}

func init() {
	identifyCmd.Flags().StringVarP(&galleryDir, "gallery", "g", "./persons", "Directory with one subdirectory of photos per person")
	rootCmd.AddCommand(compareCmd, identifyCmd)
}
