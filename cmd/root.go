package cmd

import (
	"io"
	"log"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"jobshell/internal/config"
	"jobshell/internal/eventlog"
	"jobshell/internal/repl"
)

var (
	cfgPath string
	debug   bool
	command string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jobshell",
	Short: "An interactive shell with job control",
	Long: `jobshell runs pipelines with redirections in their own process groups and
lets you stop, resume and list them with fg, bg and jobs.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		exitStatus, err = runShell(cmd)
		return err
	},
}

// exitStatus is the status the process exits with once the shell is done.
var exitStatus int

func runShell(cmd *cobra.Command) (int, error) {
	configuration, err := config.Load(afero.NewOsFs(), cfgPath)
	if err != nil {
		return 1, err
	}

	logger := log.New(io.Discard, "", 0)
	if debug {
		logger = log.New(cmd.ErrOrStderr(), "[jobshell] ", log.Lmicroseconds)
	}

	var events *eventlog.SessionLogger
	eventFd, err := configuration.OpenEventLog()
	if err != nil {
		return 1, err
	}
	if eventFd != nil {
		defer eventFd.Close()
		events = eventlog.NewJSONLinesRecorder(eventFd).NewSession()
		logger.Printf("event log session %s", events.SessionID())
	}

	shell := repl.New(repl.Options{
		Config: configuration,
		Logger: logger,
		Events: events,
	})

	if cmd.Flags().Changed("command") {
		return shell.RunCommand(command), nil
	}
	return shell.Run()
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitStatus)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log internal diagnostics to stderr")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run a single command line and exit with its status")
}
