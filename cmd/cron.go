package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinyclaw/tinyclaw/internal/config"
	"github.com/tinyclaw/tinyclaw/internal/cron"
)

var (
	cronName    string
	cronMessage string
	cronEvery   time.Duration
	cronExpr    string
	cronAt      string
	cronChannel string
	cronTo      string
	cronAll     bool
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage scheduled jobs",
}

func init() {
	cronCmd.AddCommand(cronListCmd)
	cronCmd.AddCommand(cronAddCmd)
	cronCmd.AddCommand(cronRemoveCmd)
	cronCmd.AddCommand(cronEnableCmd)
	cronCmd.AddCommand(cronDisableCmd)

	cronListCmd.Flags().BoolVarP(&cronAll, "all", "a", false, "Include disabled jobs")

	cronAddCmd.Flags().StringVarP(&cronName, "name", "n", "", "Job name")
	cronAddCmd.Flags().StringVarP(&cronMessage, "message", "m", "", "Message for the agent turn")
	cronAddCmd.Flags().DurationVar(&cronEvery, "every", 0, "Interval (e.g. 30m, 2h)")
	cronAddCmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (e.g. '0 9 * * *')")
	cronAddCmd.Flags().StringVar(&cronAt, "at", "", "One-shot ISO datetime")
	cronAddCmd.Flags().StringVar(&cronChannel, "channel", "", "Delivery channel")
	cronAddCmd.Flags().StringVar(&cronTo, "to", "", "Delivery chat id")
	_ = cronAddCmd.MarkFlagRequired("message")
}

func openCronService() *cron.Service {
	return cron.NewService(filepath.Join(config.DataDir(), "cron"))
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: func(_ *cobra.Command, _ []string) error {
		jobs := openCronService().AllJobs(cronAll)
		if len(jobs) == 0 {
			fmt.Println("No scheduled jobs.")
			return nil
		}
		for _, j := range jobs {
			next := "-"
			if j.State.NextRunMs != nil {
				next = time.UnixMilli(*j.State.NextRunMs).Format("2006-01-02 15:04:05")
			}
			state := ""
			if !j.Enabled {
				state = " (disabled)"
			}
			fmt.Printf("%s  [%s]  next=%s  %s%s\n", j.ID, j.Schedule.Kind, next, j.Name, state)
		}
		return nil
	},
}

var cronAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	RunE: func(_ *cobra.Command, _ []string) error {
		name := cronName
		if name == "" {
			name = cronMessage
			if len(name) > 40 {
				name = name[:40]
			}
		}

		svc := openCronService()
		var (
			id  string
			err error
		)
		switch {
		case cronEvery > 0:
			id, err = svc.AddJob(name, cronMessage, "every", cronEvery.Milliseconds(), "", "", 0, cronTo != "", cronChannel, cronTo)
		case cronExpr != "":
			id, err = svc.AddJob(name, cronMessage, "cron", 0, cronExpr, "", 0, cronTo != "", cronChannel, cronTo)
		case cronAt != "":
			at, perr := time.ParseInLocation("2006-01-02T15:04:05", cronAt, time.Local)
			if perr != nil {
				return fmt.Errorf("invalid --at datetime: %w", perr)
			}
			id, err = svc.AddJob(name, cronMessage, "at", 0, "", "", at.UnixMilli(), cronTo != "", cronChannel, cronTo)
		default:
			return fmt.Errorf("one of --every, --cron, or --at is required")
		}
		if err != nil {
			return err
		}
		fmt.Printf("Added job %s\n", id)
		return nil
	},
}

var cronRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if !openCronService().RemoveJob(args[0]) {
			return fmt.Errorf("job not found: %s", args[0])
		}
		fmt.Println("Removed.")
		return nil
	},
}

var cronEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a job",
	Args:  cobra.ExactArgs(1),
	RunE:  func(_ *cobra.Command, args []string) error { return setJobEnabled(args[0], true) },
}

var cronDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a job",
	Args:  cobra.ExactArgs(1),
	RunE:  func(_ *cobra.Command, args []string) error { return setJobEnabled(args[0], false) },
}

func setJobEnabled(id string, enabled bool) error {
	job, ok := openCronService().EnableJob(id, enabled)
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Job %s %s\n", job.ID, state)
	return nil
}
