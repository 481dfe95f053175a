package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/varmock/varmock/pkg/alerts"
	"github.com/varmock/varmock/pkg/definition"
	"github.com/varmock/varmock/pkg/handler"
	"github.com/varmock/varmock/pkg/mocks"
)

// ErrInvalidDefinitions is returned by validate when loading raised errors.
var ErrInvalidDefinitions = errors.New("definitions contain errors")

// validateOutput is the --json shape of validate.
type validateOutput struct {
	Path     string         `json:"path"`
	Files    int            `json:"files"`
	Routes   int            `json:"routes"`
	Variants int            `json:"variants"`
	Mocks    []string       `json:"mocks"`
	Alerts   []alerts.Alert `json:"alerts"`
	Valid    bool           `json:"valid"`
}

func newValidateCommand() *cobra.Command {
	var (
		asJSON  bool
		pattern string
	)
	cmd := &cobra.Command{
		Use:   "validate [folder]",
		Short: "Check a definitions folder without starting the server",
		Long: `Loads every definitions file of the folder (default "mocks"), builds all
routes and mocks and prints the problems found. Exits non-zero when a file,
route variant or mock could not be processed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "mocks"
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(cmd, dir, pattern, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the report as JSON")
	cmd.Flags().StringVar(&pattern, "pattern", definition.DefaultPattern, "Doublestar pattern selecting definitions files")
	return cmd
}

func runValidate(cmd *cobra.Command, dir, pattern string, asJSON bool) error {
	set := alerts.New()
	loader := definition.NewLoader(dir,
		definition.WithPattern(pattern),
		definition.WithLoaderAlerts(set))
	registry := mocks.NewRegistry(loader, handler.NewRegistry(handler.Builtins()...), mocks.WithAlerts(set))

	report, _ := loader.Load()
	registry.Load()
	checkReferences(loader.LoadedMocks(), set.Scoped(mocks.AlertProcessMocks))

	out := validateOutput{
		Path:     dir,
		Routes:   len(registry.PlainRoutes()),
		Variants: len(registry.PlainRouteVariants()),
		Mocks:    registry.IDs(),
		Alerts:   set.List(),
		Valid:    true,
	}
	if report != nil {
		out.Files = len(report.Files)
	}
	for _, a := range out.Alerts {
		if isError(a.Key) {
			out.Valid = false
			break
		}
	}

	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "Folder:   %s\n", out.Path)
		fmt.Fprintf(w, "Files:    %d\n", out.Files)
		fmt.Fprintf(w, "Routes:   %d\n", out.Routes)
		fmt.Fprintf(w, "Variants: %d\n", out.Variants)
		fmt.Fprintf(w, "Mocks:    %d\n", len(out.Mocks))
		for _, a := range out.Alerts {
			level := "warning"
			if isError(a.Key) {
				level = "error"
			}
			fmt.Fprintf(w, "  %s [%s] %s\n", level, a.Key, a.Message)
		}
		if out.Valid {
			fmt.Fprintln(w, "OK")
		}
	}

	if !out.Valid {
		return ErrInvalidDefinitions
	}
	return nil
}

// checkReferences raises "<mock>:refs" for route entries that are not
// "routeId:variantId" composite ids.
func checkReferences(defs []definition.MockDefinition, sink alerts.Sink) {
	for _, def := range defs {
		var malformed []string
		for _, ref := range def.Routes {
			if _, _, ok := definition.SplitVariantID(ref); !ok {
				malformed = append(malformed, strconv.Quote(ref))
			}
		}
		if len(malformed) > 0 {
			sink.Add(def.ID+alerts.Separator+"refs", fmt.Sprintf(
				"Mock %q has malformed route variant ids %s. Expected \"routeId:variantId\"",
				def.ID, strings.Join(malformed, ", ")))
		}
	}
}

// isError reports whether an alert key belongs to loading or processing.
// Selection alerts (current:*) are warnings.
func isError(key string) bool {
	return strings.HasPrefix(key, "load:") || strings.HasPrefix(key, "process:")
}
