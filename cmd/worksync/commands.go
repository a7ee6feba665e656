package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/engine"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/output"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/provision"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/runstore"
)

// TriggerCLI marks runs started from the command line.
const TriggerCLI = "cli"

// errFailures is returned after a batch that recorded per-entity errors.
// The details have already been printed.
var errFailures = errors.New("finished with errors")

type app struct {
	out       io.Writer
	jsonOut   bool
	newEngine func() (*engine.Engine, error)
}

// withEngine opens an engine for one command and closes it afterwards.
func (a *app) withEngine(fn func(*engine.Engine) error) error {
	eng, err := a.newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()
	return fn(eng)
}

func (a *app) printRun(run *runstore.Run) error {
	if a.jsonOut {
		if err := output.JSON(a.out, run); err != nil {
			return err
		}
	} else {
		output.Run(a.out, run)
	}
	if run.Status == runstore.StatusPartial || run.Status == runstore.StatusFailed {
		return errFailures
	}
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "worksync",
		Short:         "Sync local work items, ideas and projects with GitHub",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON instead of text")
	root.AddCommand(newEntityCmd(a), newSyncCmd(a), newProjectCmd(a))
	return root
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile every local entity with its GitHub issue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(eng *engine.Engine) error {
				run, err := eng.FullSync(cmd.Context(), TriggerCLI)
				if err != nil {
					return err
				}
				return a.printRun(run)
			})
		},
	}
}

func newEntityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entity",
		Aliases: []string{"entities", "e"},
		Short:   "Manage local entities",
	}

	var add models.Entity
	var addKind string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a local entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseKind(addKind)
			if err != nil {
				return err
			}
			add.Kind = kind
			return a.withEngine(func(eng *engine.Engine) error {
				ent, err := eng.AddEntity(cmd.Context(), &add)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return output.JSON(a.out, ent)
				}
				output.Success(a.out, "added %s", ent.Ref())
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&addKind, "kind", "work_item", "work_item, idea or project")
	addCmd.Flags().StringVar(&add.Title, "title", "", "title (required)")
	addCmd.Flags().StringVar(&add.Description, "description", "", "description")
	addCmd.Flags().StringVar(&add.Type, "type", "", "item type, e.g. bug or feature")
	addCmd.Flags().StringVar(&add.Component, "component", "", "component")
	addCmd.Flags().StringVar(&add.Status, "status", "", "initial status (default from taxonomy)")
	addCmd.Flags().StringVar(&add.Priority, "priority", "", "initial priority (default from taxonomy)")
	_ = addCmd.MarkFlagRequired("title")

	var listKind string
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List local entities",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind models.Kind
			if listKind != "" {
				k, err := models.ParseKind(listKind)
				if err != nil {
					return err
				}
				kind = k
			}
			return a.withEngine(func(eng *engine.Engine) error {
				list, err := eng.ListEntities(cmd.Context(), kind)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return output.JSON(a.out, list)
				}
				output.Entities(a.out, list)
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&listKind, "kind", "", "only list this kind")

	showCmd := &cobra.Command{
		Use:   "show KIND ID",
		Short: "Show one entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseKind(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(func(eng *engine.Engine) error {
				ent, err := eng.GetEntity(cmd.Context(), kind, args[1])
				if err != nil {
					return err
				}
				if a.jsonOut {
					return output.JSON(a.out, ent)
				}
				output.Entities(a.out, []*models.Entity{ent})
				return nil
			})
		},
	}

	linkCmd := &cobra.Command{
		Use:   "link KIND ID",
		Short: "Create the GitHub issue for an unlinked entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseKind(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(func(eng *engine.Engine) error {
				ref, err := eng.LinkEntity(cmd.Context(), kind, args[1])
				if err != nil {
					return err
				}
				if a.jsonOut {
					return output.JSON(a.out, ref)
				}
				output.Success(a.out, "linked %s/%s to #%d %s", kind, args[1], ref.ID, ref.URL)
				return nil
			})
		},
	}

	cmd.AddCommand(addCmd, listCmd, showCmd, linkCmd,
		newSetStateCmd(a, "set-status", "Change an entity's status and push it", func(v string) engine.StateChange {
			return engine.StateChange{Status: &v}
		}),
		newSetStateCmd(a, "set-priority", "Change an entity's priority and push it", func(v string) engine.StateChange {
			return engine.StateChange{Priority: &v}
		}),
	)
	return cmd
}

func newSetStateCmd(a *app, use, short string, change func(string) engine.StateChange) *cobra.Command {
	return &cobra.Command{
		Use:   use + " KIND ID VALUE",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseKind(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(func(eng *engine.Engine) error {
				report, err := eng.SetEntityState(cmd.Context(), kind, args[1], change(args[2]))
				if err != nil {
					return err
				}
				if a.jsonOut {
					if err := output.JSON(a.out, report); err != nil {
						return err
					}
				} else {
					output.DispatchReport(a.out, report)
				}
				if report.Failed > 0 {
					return errFailures
				}
				return nil
			})
		},
	}
}

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects", "p"},
		Short:   "Provision GitHub repositories for projects",
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Create repositories for every project without one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(eng *engine.Engine) error {
				run, err := eng.SyncAllProjects(cmd.Context(), TriggerCLI)
				if err != nil {
					return err
				}
				return a.printRun(run)
			})
		},
	}

	createCmd := &cobra.Command{
		Use:   "create-repo PROJECT_ID",
		Short: "Create, link and label the repository for one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(eng *engine.Engine) error {
				ref, run, err := eng.CreateRepository(cmd.Context(), args[0], TriggerCLI)
				var seedErr *provision.SeedError
				if err != nil && !errors.As(err, &seedErr) {
					return err
				}
				if !a.jsonOut && ref != nil {
					output.Success(a.out, "linked %s to %s", args[0], ref.URL)
				}
				return a.printRun(run)
			})
		},
	}

	reseedCmd := &cobra.Command{
		Use:   "reseed PROJECT_ID",
		Short: "Ensure the label taxonomy exists on a project's repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(func(eng *engine.Engine) error {
				n, run, err := eng.ReseedLabels(cmd.Context(), args[0], TriggerCLI)
				if err != nil && n == 0 {
					return err
				}
				if !a.jsonOut {
					output.Success(a.out, "%d labels ensured", n)
				}
				return a.printRun(run)
			})
		},
	}

	cmd.AddCommand(syncCmd, createCmd, reseedCmd)
	return cmd
}
