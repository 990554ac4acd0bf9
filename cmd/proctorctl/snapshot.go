package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

func snapshotCmd(newLog func() zerolog.Logger) *cobra.Command {
	var assessmentID, candidateID string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect or clear stored session snapshots",
	}
	cmd.PersistentFlags().StringVar(&candidateID, "candidate", "", "Candidate ID")
	cmd.PersistentFlags().StringVar(&assessmentID, "assessment", "", "Assessment ID")
	_ = cmd.MarkPersistentFlagRequired("candidate")

	open := func(cmd *cobra.Command, needAssessment bool) (*repository.RedisSnapshotRepository, func(), error) {
		if !validator.ValidResourceID(candidateID) {
			return nil, nil, fmt.Errorf("invalid candidate id %q", candidateID)
		}
		if needAssessment && !validator.ValidResourceID(assessmentID) {
			return nil, nil, fmt.Errorf("invalid assessment id %q", assessmentID)
		}
		cfg := config.Load()
		rdb, err := database.NewRedisClient(cmd.Context(), cfg, newLog())
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisSnapshotRepository(rdb, cfg.SnapshotTTL), func() { rdb.Close() }, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer closeFn()

			snap, err := repo.Load(cmd.Context(), config.CacheKey.SnapshotKey(candidateID, assessmentID))
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("no snapshot for candidate %s on assessment %s", candidateID, assessmentID)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the stored snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := repo.Clear(cmd.Context(), config.CacheKey.SnapshotKey(candidateID, assessmentID)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the assessments a candidate has stored progress for",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeFn, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer closeFn()

			keys, err := repo.Keys(cmd.Context(), config.CacheKey.SnapshotPattern(candidateID))
			if err != nil {
				return err
			}
			prefix := fmt.Sprintf("proctor:candidate:%s:assessment:", candidateID)
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSuffix(strings.TrimPrefix(k, prefix), ":snapshot"))
			}
			return nil
		},
	})

	return cmd
}
