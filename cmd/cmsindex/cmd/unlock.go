package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/output"
	"github.com/Aman-CERP/cmsindex/internal/storage"
)

func newUnlockCmd(global *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock <index>",
		Short: "Clear a stale index lock marker",
		Long: `Remove the lock marker of an index whose owning process is gone.

With --force the marker is removed even when its owner still runs. Only do
this when you are certain no other process is writing to the index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnlock(cmd.Context(), cmd, global, args[0], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Remove the marker even if its owner is alive")

	return cmd
}

func runUnlock(ctx context.Context, cmd *cobra.Command, global *globalOptions, name string, force bool) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	log, cleanup := setupLogging(cfg)
	defer cleanup()

	descs, err := cfg.Descriptors()
	if err != nil {
		return err
	}
	var desc *storage.Descriptor
	for i := range descs {
		if descs[i].Name == name {
			desc = &descs[i]
			break
		}
	}
	if desc == nil {
		return cmserrors.New(cmserrors.ErrCodeUnknownIndex, fmt.Sprintf("unknown index %s", name), nil)
	}
	if desc.InMemory {
		return cmserrors.ConfigError(fmt.Sprintf("index %s is in memory and has no lock marker", name), nil)
	}

	out := output.New(cmd.OutOrStdout())

	info, err := storage.InspectLock(desc.Root, desc.Name)
	if err != nil {
		return err
	}
	if !info.Exists {
		out.Successf("%s is not locked", name)
		return nil
	}

	if force {
		// Opening with ForceUnlock replaces the marker; closing removes ours.
		h, err := storage.Open(ctx, *desc, storage.Options{ForceUnlock: true, Logger: log})
		if err != nil {
			return err
		}
		if err := h.Close(); err != nil {
			return err
		}
		out.Warningf("%s: removed marker of pid %d", name, info.PID)
		return nil
	}

	removed, err := storage.ClearStaleLock(ctx, desc.Root, desc.Name)
	if err != nil {
		return cmserrors.New(cmserrors.ErrCodeIndexLocked, fmt.Sprintf("%s is locked by running pid %d", name, info.PID), err).
			WithSuggestion("Stop that process, or pass --force if it is not writing to the index")
	}
	if removed {
		out.Successf("%s: cleared stale marker of pid %d", name, info.PID)
	} else {
		out.Successf("%s is not locked", name)
	}
	return nil
}
