package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dimuls/jdlib/internal/store"
)

func openStore(ctx context.Context) (*store.Store, error) {
	s, err := store.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return s, nil
}

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> <image>...",
	Short: "Store the faces of single-face photos under a person's name",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		j, err := openJdlib()
		if err != nil {
			return err
		}
		defer j.Close()

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		// The command context may already be cancelled.
		defer db.Close(context.Background())

		name, photos := args[0], args[1:]

		bar := progressbar.NewOptions(len(photos),
			progressbar.OptionSetDescription("Enrolling "+name),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		var id int
		for _, photo := range photos {
			if err := ctx.Err(); err != nil {
				return err
			}

			d, err := singleEmbedding(j, photo)
			if err != nil {
				return err
			}

			id, err = db.Enroll(ctx, name, photo, d)
			if err != nil {
				return fmt.Errorf("enroll %s: %w", photo, err)
			}
			bar.Add(1)
		}
		bar.Finish()

		logger.Info("person enrolled", zap.String("name", name), zap.Int("id", id), zap.Int("photos", len(photos)))
		return printJSON(cmd.OutOrStdout(), map[string]any{"id": id, "name": name, "photos": len(photos)})
	},
}

type found struct {
	ID       int     `json:"id"`
	Name     string  `json:"name,omitempty"`
	Distance float64 `json:"distance,omitempty"`
	Matched  bool    `json:"matched"`
}

var findCmd = &cobra.Command{
	Use:   "find <image>",
	Short: "Search the database for the person on a photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		j, err := openJdlib()
		if err != nil {
			return err
		}
		defer j.Close()

		faces, err := embeddings(j, args[0])
		if err != nil {
			return err
		}

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close(context.Background())

		result := make([]found, len(faces))
		for i, f := range faces {
			m, err := db.FindClosest(ctx, *f.Embedding, cfg.Match.Threshold)
			if err != nil {
				return fmt.Errorf("database search failed: %w", err)
			}
			result[i] = found{ID: m.ID, Name: m.Name, Distance: m.Distance, Matched: m.ID != -1}
		}

		return printJSON(cmd.OutOrStdout(), result)
	},
}

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "List the enrolled people",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close(context.Background())

		people, err := db.ListPeople(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list people: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(people) == 0 {
			fmt.Fprintln(out, "No people enrolled.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tFACES\tCREATED")
		fmt.Fprintln(w, "--\t----\t-----\t-------")
		for _, p := range people {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", p.ID, p.Name, p.Faces, p.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd, findCmd, peopleCmd)
}
