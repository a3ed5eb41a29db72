package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"cloudsync/core/backend"
	"cloudsync/core/config"
	"cloudsync/core/logger"
	"cloudsync/core/tree"
	"cloudsync/feature/localfs"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

var remoteOnly bool

// treeCmd fetches the storage trees once and prints them.
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "List the local and remote storage trees",
	Long:  `Fetches the local directory and the remote storage concurrently and prints every item with its version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configDir)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			return err
		}
		defer logg.Sync()

		ctx := cmd.Context()
		remote, err := openRemote(ctx, cfg, logg)
		if err != nil {
			return err
		}
		storages := []backend.Storage{remote}
		if !remoteOnly {
			local, err := localfs.New(cfg.Sync.LocalDir, logg.Named("local"))
			if err != nil {
				return err
			}
			storages = append([]backend.Storage{local}, storages...)
		}

		snaps, err := fetchTrees(ctx, storages)
		if err != nil {
			return err
		}
		for i, s := range storages {
			logg.Debug("Fetched tree", zap.String("storage", s.ID()), zap.Int("items", len(snaps[i].Items)))
			printTree(cmd.OutOrStdout(), s.ID(), snaps[i])
		}
		return nil
	},
}

// fetchTrees lists every storage concurrently. The first failure cancels
// the other listings.
func fetchTrees(ctx context.Context, storages []backend.Storage) ([]*tree.Snapshot, error) {
	snaps := make([]*tree.Snapshot, len(storages))
	g, ctx := errgroup.WithContext(ctx)
	for i, s := range storages {
		g.Go(func() error {
			snap, err := s.GetTree(ctx, false)
			if err != nil {
				return fmt.Errorf("fetch %s tree: %w", s.ID(), err)
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snaps, nil
}

func printTree(w io.Writer, storageID string, snap *tree.Snapshot) {
	items := slices.Clone(snap.Items)
	slices.SortFunc(items, func(a, b tree.SnapshotItem) int {
		return strings.Compare(strings.Join(a.Path, "/"), strings.Join(b.Path, "/"))
	})

	fmt.Fprintf(w, "%s (%d items)\n", storageID, len(items))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range items {
		name := "/" + strings.Join(item.Path, "/")
		if item.Props.IsDir {
			name += "/"
		}
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", name, item.Props.Size, item.Props.VersionID)
	}
	tw.Flush()
}

func init() {
	treeCmd.Flags().BoolVar(&remoteOnly, "remote", false, "only list the remote storage")
	RootCmd.AddCommand(treeCmd)
}
