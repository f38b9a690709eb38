// Package cli holds the pieces shared by the aimechanics command-line
// tool: the application config, the ~/.aimechanics directory layout,
// output formatting (YAML, JSON, tables, jq queries) and terminal styles.
//
// Example usage:
//
//	cfg, err := cli.LoadAppConfig("")
//	if err != nil {
//	    return err
//	}
//	reg, err := registry.Open(cfg.Registry)
//
//	cli.Output(records, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    Query:  ".[0].id",
//	})
package cli
