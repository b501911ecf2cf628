package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/scriptrun-bridge/internal/models"
	"github.com/example/scriptrun-bridge/internal/scriptrun"
	"github.com/example/scriptrun-bridge/internal/transport"
)

// errFailureHandled marks a call that settled in the failure handler. The
// outcome has already been printed, so main only sets the exit status.
var errFailureHandled = errors.New("call settled in failure handler")

func newRootCmd(out io.Writer, setup setupFunc) *cobra.Command {
	var baseURL string

	root := &cobra.Command{
		Use:           "scriptrun",
		Short:         "Run legacy script methods against the HTTP backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend base URL (overrides API_BASE_URL)")

	withApp := func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), baseURL)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(cmd.Context()); cerr != nil {
					a.log.Error().Err(cerr).Msg("shutdown failed")
				}
			}()
			return run(cmd, a, args)
		}
	}

	root.AddCommand(
		newCallCmd(withApp),
		newMethodsCmd(withApp),
		newPingCmd(withApp),
		newRoutesCmd(),
	)
	return root
}

type appRunner func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error

func newCallCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [args...]",
		Short: "Invoke a legacy method and print its outcome",
		Long: `Invoke a legacy method through the adapter table and print the outcome as JSON.

Each argument is parsed as JSON; anything that is not valid JSON is passed as a
plain string. An argument of the form @path is replaced by the file contents.
The command exits non-zero when the failure handler fires.`,
		Example: `  scriptrun call apiFetchPPCData
  scriptrun call apiLogin maria secret
  scriptrun call apiSavePPCData '[{"id":"T-1"}]' maria
  scriptrun call apiTranscribeAndAnalyze note.webm @note.webm`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			callArgs, err := parseCallArgs(args[1:])
			if err != nil {
				return err
			}

			var failed bool
			emit := func(out models.Outcome) {
				data, err := json.Marshal(out)
				if err != nil {
					data = []byte(`null`)
				}
				cmd.Println(string(data))
			}
			a.runner.Run(cmd.Context(), args[0], callArgs, scriptrun.Handlers{
				OnSuccess: emit,
				OnFailure: func(out models.Outcome) {
					failed = true
					emit(out)
				},
			})
			if failed {
				return errFailureHandled
			}
			return nil
		}),
	}
}

func newMethodsCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the legacy method table",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range a.runner.Methods() {
				ep, _ := a.runner.Lookup(name)
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, ep.Kind, ep.Note)
			}
			return w.Flush()
		}),
	}
}

func newPingCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the backend answers",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			out := a.client.Ping(cmd.Context())
			if out.IsFailure() {
				return errors.New(out.Message)
			}
			cmd.Printf("backend %s is up\n", a.client.BaseURL())
			return nil
		}),
	}
}

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the backend routes used by real methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			routes := transport.Routes()
			names := make([]string, 0, len(routes))
			for name := range routes {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%s\n", name, routes[name])
			}
			return w.Flush()
		},
	}
}

func parseCallArgs(raw []string) ([]any, error) {
	args := make([]any, 0, len(raw))
	for _, arg := range raw {
		if path, ok := strings.CutPrefix(arg, "@"); ok && path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read argument file: %w", err)
			}
			args = append(args, data)
			continue
		}

		dec := json.NewDecoder(bytes.NewReader([]byte(arg)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			args = append(args, arg)
			continue
		}
		args = append(args, v)
	}
	return args, nil
}
