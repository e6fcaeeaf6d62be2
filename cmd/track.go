package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/newswatch/internal/model"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run a tracking pipeline once and exit",
}

var trackNewsCmd = &cobra.Command{
	Use:   "news",
	Short: "Track the news source catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.News.Run(cmd.Context(), model.CategoryDefense, model.CategoryBusiness, model.CategoryWorld)
		if err != nil {
			return err
		}
		zap.L().Info("news tracking done",
			zap.Int("sources", res.Sources),
			zap.Int("failed", res.Failed),
			zap.Int("new_articles", res.NewArticles),
		)
		return nil
	},
}

var trackBlogsCmd = &cobra.Command{
	Use:   "blogs",
	Short: "Track the blog source catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.News.Run(cmd.Context(), model.CategoryBlogs)
		if err != nil {
			return err
		}
		zap.L().Info("blog tracking done",
			zap.Int("sources", res.Sources),
			zap.Int("failed", res.Failed),
			zap.Int("new_articles", res.NewArticles),
		)
		return nil
	},
}

var trackGrantsCmd = &cobra.Command{
	Use:   "grants",
	Short: "Ingest and summarize the grant catalog export",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Grants.Run(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("grant tracking done",
			zap.Int("parsed", res.Parsed),
			zap.Int64("inserted", res.Inserted),
			zap.Int("summarized", res.Summarized),
			zap.Int("failed", res.Failed),
		)
		return nil
	},
}

func init() {
	trackCmd.AddCommand(trackNewsCmd)
	trackCmd.AddCommand(trackBlogsCmd)
	trackCmd.AddCommand(trackGrantsCmd)
	rootCmd.AddCommand(trackCmd)
}
