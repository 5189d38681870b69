package cmd

import (
	"fmt"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"algomind/src/core/embedding"
	"algomind/src/log"
	"algomind/src/storage/minioctrl"
	"algomind/src/storage/weaviate"
)

var (
	syncBatchSize int
	syncRecreate  bool
	publishTarget string
)

var embeddingsCmd = &cobra.Command{
	Use:   "embeddings",
	Short: "Inspect and distribute the embedding artifact",
}

var embeddingsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the artifact configured by embedding.path and print its statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadWithProgress()
		if err != nil {
			return err
		}

		byType := map[string]int{}
		for _, e := range table.Entities() {
			byType[string(e.Type)]++
		}
		types := make([]string, 0, len(byType))
		for t := range byType {
			types = append(types, t)
		}
		sort.Strings(types)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "entities:  %d\n", table.Len())
		fmt.Fprintf(out, "dimension: %d\n", table.Dimension())
		for _, t := range types {
			fmt.Fprintf(out, "  %-14s %d\n", t, byType[t])
		}
		return nil
	},
}

var embeddingsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload the artifact's vectors into the Weaviate class used as the similarity index",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadWithProgress()
		if err != nil {
			return err
		}

		sdk, err := weaviate.Dial(viper.GetString("weaviate.url"))
		if err != nil {
			return err
		}
		if err := sdk.Ping(cmd.Context()); err != nil {
			return err
		}

		class := viper.GetString("weaviate.class")
		if syncRecreate {
			if err := sdk.DeleteSchema(cmd.Context(), class); err != nil {
				return err
			}
			log.Info("Dropped Weaviate class before sync", "class", class)
		}
		bar := progressbar.Default(int64(table.Len()), "syncing "+class)
		err = sdk.SyncTable(cmd.Context(), class, table, syncBatchSize, func(n int) {
			_ = bar.Add(n)
		})
		if err != nil {
			return err
		}
		log.Info("Embedding table synced", "class", class, "entities", table.Len())
		return nil
	},
}

var embeddingsPublishCmd = &cobra.Command{
	Use:   "publish [local file]",
	Short: "Validate a local artifact and upload it to MinIO",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, object, err := minioctrl.ParseURL(publishTarget)
		if err != nil {
			return err
		}

		// refuse to publish something serve would reject
		viper.Set("embedding.path", args[0])
		table, err := loadWithProgress()
		if err != nil {
			return err
		}

		svc, err := newMinioService()
		if err != nil {
			return err
		}
		size, err := svc.UploadFile(cmd.Context(), bucket, object, args[0], "application/json")
		if err != nil {
			return err
		}
		log.Info("Embedding artifact published", "url", minioctrl.BuildURL(bucket, object), "bytes", size, "entities", table.Len())
		return nil
	},
}

var embeddingsUnpublishCmd = &cobra.Command{
	Use:   "unpublish [minio url]",
	Short: "Remove a published artifact from MinIO",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, object, err := minioctrl.ParseURL(args[0])
		if err != nil {
			return err
		}
		if viper.GetString("embedding.path") == args[0] {
			log.Info("Removing the artifact serve is configured to load", "url", args[0])
		}

		svc, err := newMinioService()
		if err != nil {
			return err
		}
		if err := svc.DeleteObject(cmd.Context(), bucket, object); err != nil {
			return err
		}
		log.Info("Embedding artifact removed", "url", args[0])
		return nil
	},
}

// loadWithProgress loads embedding.path without the process-wide cache, drawing a
// byte progress bar when the size is known
func loadWithProgress() (*embedding.Table, error) {
	store, err := newFileStore()
	if err != nil {
		return nil, err
	}
	path := viper.GetString("embedding.path")

	size, err := store.Size(path)
	if err != nil {
		size = -1
	}
	bar := progressbar.DefaultBytes(size, "loading "+path)
	table, err := embedding.Load(store, path, bar)
	_ = bar.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding artifact %s: %w", path, err)
	}
	return table, nil
}

func init() {
	rootCmd.AddCommand(embeddingsCmd)
	embeddingsCmd.AddCommand(embeddingsValidateCmd, embeddingsSyncCmd, embeddingsPublishCmd, embeddingsUnpublishCmd)

	embeddingsSyncCmd.Flags().IntVar(&syncBatchSize, "batch-size", 100, "objects per Weaviate batch request")
	embeddingsSyncCmd.Flags().BoolVar(&syncRecreate, "recreate", false, "drop the class first so entities removed from the artifact disappear from the index")
	embeddingsPublishCmd.Flags().StringVar(&publishTarget, "to", "minio://artifacts/embeddings.json", "destination object URL")
}
