package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/guidecap-cli/internal/observability"
	"github.com/xkilldash9x/guidecap-cli/internal/registry"
)

// newAppsCmd lists the applications guidecap knows how to log in to.
func newAppsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "Lists the known applications and their credential variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New(cfg.Registry, observability.GetLogger())
			for _, app := range reg.Apps() {
				prefix := strings.ToUpper(app.Name)
				fmt.Printf("%-10s %-30s (%s_EMAIL / %s_PASSWORD)\n",
					app.Name, app.LoginURL, prefix, prefix)
			}
			return nil
		},
	}
}
